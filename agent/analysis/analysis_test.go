package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	agenttestx "github.com/sirawit-t/agentic-pricing-pipeline/agent/agenttest"
	contractx "github.com/sirawit-t/agentic-pricing-pipeline/agent/contract"
)

const ownerID = int64(42)

func competitorData() *agenttestx.Data {
	return &agenttestx.Data{
		ItemRows: []contractx.Item{
			{ID: 1, Name: "Latte", Category: "drinks", Price: 4.50, Cost: 1.20},
		},
		CompetitorRows: []contractx.CompetitorPrice{
			{Competitor: "Corner Cafe", ItemName: "Latte", Price: 4.80, CapturedAt: time.Now()},
		},
	}
}

func TestCompetitorRunSuccess(t *testing.T) {
	t.Parallel()

	llm := &agenttestx.Completer{Responses: []string{
		"```json\n{\"summary\": \"Prices sit slightly below the competition.\", \"insights\": [\"Corner Cafe charges 0.30 more for a latte\"], \"positioning\": {\"overall\": \"discount\"}}\n```",
	}}
	store := agenttestx.NewStore()

	report, err := NewCompetitor(llm, competitorData(), store).Run(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.Degraded() {
		t.Fatalf("unexpected degraded report: %s", report.Summary)
	}
	if report.Kind != contractx.ReportKindCompetitor {
		t.Fatalf("unexpected kind: %s", report.Kind)
	}
	if report.Sections.Competitor == nil {
		t.Fatal("competitor sections must be set")
	}
	if report.Sections.Competitor.Insights == nil {
		t.Fatal("insights section must be populated")
	}
	if len(store.Reports) != 1 {
		t.Fatalf("expected exactly one persisted report, got %d", len(store.Reports))
	}
	if len(llm.Prompts) != 1 || !strings.Contains(llm.Prompts[0], "Corner Cafe") {
		t.Fatal("prompt must embed the gathered competitor data")
	}
}

func TestCompetitorRunModelFailureDegrades(t *testing.T) {
	t.Parallel()

	llm := &agenttestx.Completer{Err: errors.New("upstream 503")}
	store := agenttestx.NewStore()

	report, err := NewCompetitor(llm, competitorData(), store).Run(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("Run() must not propagate model failure, got %v", err)
	}

	if !report.Degraded() {
		t.Fatalf("expected degraded report, got summary %q", report.Summary)
	}
	if !strings.HasPrefix(report.Summary, "Error generating competitor report:") {
		t.Fatalf("unexpected degraded summary: %q", report.Summary)
	}
	sec := report.Sections.Competitor
	if sec == nil || sec.Insights == nil || sec.Positioning == nil {
		t.Fatal("degraded report must still carry non-nil sections")
	}
	if len(store.Reports) != 1 {
		t.Fatalf("degraded report must still be persisted, got %d rows", len(store.Reports))
	}
}

func TestCompetitorRunGarbageCompletionDegrades(t *testing.T) {
	t.Parallel()

	llm := &agenttestx.Completer{Responses: []string{"I cannot help with that."}}
	store := agenttestx.NewStore()

	report, err := NewCompetitor(llm, competitorData(), store).Run(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !report.Degraded() {
		t.Fatal("expected degraded report for unextractable completion")
	}
}

func TestCompetitorRunMissingDataDegrades(t *testing.T) {
	t.Parallel()

	llm := &agenttestx.Completer{Responses: []string{`{"summary": "unused"}`}}
	store := agenttestx.NewStore()
	data := &agenttestx.Data{} // no competitor snapshots

	report, err := NewCompetitor(llm, data, store).Run(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !report.Degraded() {
		t.Fatal("expected degraded report when competitor data is missing")
	}
	if !strings.Contains(report.Summary, "no competitor price snapshots") {
		t.Fatalf("summary must carry the missing-data reason: %q", report.Summary)
	}
	if len(llm.Prompts) != 0 {
		t.Fatal("model must not be invoked when gathering fails")
	}
}

func TestCompetitorRunPersistenceFailurePropagates(t *testing.T) {
	t.Parallel()

	llm := &agenttestx.Completer{Responses: []string{`{"summary": "fine"}`}}
	store := agenttestx.NewStore()
	store.InsertErr = errors.New("connection reset")

	_, err := NewCompetitor(llm, competitorData(), store).Run(context.Background(), ownerID)
	if err == nil {
		t.Fatal("persistence failure must propagate")
	}
}

func TestCustomerRunSuccess(t *testing.T) {
	t.Parallel()

	llm := &agenttestx.Completer{Responses: []string{
		`{"summary": "Regulars dominate weekday mornings.", "demographics": {"profile": "commuters"}, "events": ["spike on May 2"], "trends": ["growing oat milk share"]}`,
	}}
	store := agenttestx.NewStore()
	data := &agenttestx.Data{
		Activity: &contractx.CustomerActivity{
			OrderCount:        310,
			TotalRevenue:      2480.50,
			AverageOrderValue: 8.0,
			TopItems:          []contractx.SalesAggregate{{ItemID: 1, ItemName: "Latte", Quantity: 190, Revenue: 855}},
		},
	}

	report, err := NewCustomer(llm, data, store).Run(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Degraded() {
		t.Fatalf("unexpected degraded report: %s", report.Summary)
	}
	sec := report.Sections.Customer
	if sec == nil || sec.Demographics == nil || sec.Events == nil || sec.Trends == nil {
		t.Fatal("all customer sections must be populated")
	}
}

func TestCustomerRunNoOrdersDegrades(t *testing.T) {
	t.Parallel()

	llm := &agenttestx.Completer{}
	store := agenttestx.NewStore()
	data := &agenttestx.Data{Activity: &contractx.CustomerActivity{OrderCount: 0}}

	report, err := NewCustomer(llm, data, store).Run(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !report.Degraded() {
		t.Fatal("expected degraded report when there are no recent orders")
	}
	if !strings.HasPrefix(report.Summary, "Error generating customer report:") {
		t.Fatalf("unexpected degraded summary: %q", report.Summary)
	}
}

func TestMarketRunEmptyCatalogueStillReports(t *testing.T) {
	t.Parallel()

	llm := &agenttestx.Completer{Responses: []string{
		`{"summary": "The specialty coffee market keeps expanding.", "trends": ["premiumization"], "opportunities": ["seasonal menu"], "threats": ["chain competition"]}`,
	}}
	store := agenttestx.NewStore()

	report, err := NewMarket(llm, &agenttestx.Data{}, store).Run(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Degraded() {
		t.Fatalf("market agent must tolerate an empty catalogue: %s", report.Summary)
	}
	if report.Sections.Market == nil {
		t.Fatal("market sections must be set")
	}
}

func TestRunIsInsertOnly(t *testing.T) {
	t.Parallel()

	llm := &agenttestx.Completer{Responses: []string{
		`{"summary": "First assessment of the market."}`,
		`{"summary": "Second assessment of the market."}`,
	}}
	store := agenttestx.NewStore()
	agent := NewMarket(llm, &agenttestx.Data{}, store)

	first, err := agent.Run(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	second, err := agent.Run(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	if len(store.Reports) != 2 {
		t.Fatalf("expected two rows after two runs, got %d", len(store.Reports))
	}
	if first.ID == second.ID {
		t.Fatal("re-running must create a new row, not reuse the old one")
	}
	if second.CreatedAt.Before(first.CreatedAt) {
		t.Fatal("later run must carry a later timestamp")
	}
}
