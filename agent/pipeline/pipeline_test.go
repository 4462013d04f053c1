package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	agenttestx "github.com/sirawit-t/agentic-pricing-pipeline/agent/agenttest"
	contractx "github.com/sirawit-t/agentic-pricing-pipeline/agent/contract"
)

const ownerID = int64(42)

// blockingCompleter answers by prompt content so the three concurrent
// agents each get the right response regardless of scheduling order,
// and releases them only once all three have arrived.
type blockingCompleter struct {
	mu      sync.Mutex
	arrived int
	release chan struct{}
	fail    map[string]bool
}

func newBlockingCompleter(fail map[string]bool) *blockingCompleter {
	return &blockingCompleter{
		release: make(chan struct{}),
		fail:    fail,
	}
}

func (b *blockingCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	b.mu.Lock()
	b.arrived++
	if b.arrived == 3 {
		close(b.release)
	}
	b.mu.Unlock()

	select {
	case <-b.release:
	case <-time.After(5 * time.Second):
		return "", context.DeadlineExceeded
	}

	switch {
	case strings.Contains(prompt, "competitive pricing analyst"):
		if b.fail["competitor"] {
			return "no structure at all", nil
		}
		return `{"summary": "Priced below nearby competitors.", "insights": ["gap on lattes"]}`, nil
	case strings.Contains(prompt, "customer behavior analyst"):
		return `{"summary": "Morning regulars drive volume.", "trends": ["steady growth"]}`, nil
	case strings.Contains(prompt, "market analyst"):
		return `{"summary": "Category demand keeps rising.", "trends": ["premiumization"]}`, nil
	default:
		return `{"summary": "Synthesis.", "recommendations": []}`, nil
	}
}

func pipelineData() *agenttestx.Data {
	return &agenttestx.Data{
		ItemRows: []contractx.Item{
			{ID: 1, Name: "Latte", Price: 4.50},
		},
		CompetitorRows: []contractx.CompetitorPrice{
			{Competitor: "Corner Cafe", ItemName: "Latte", Price: 4.80},
		},
		Activity: &contractx.CustomerActivity{OrderCount: 120, TotalRevenue: 900, AverageOrderValue: 7.5},
	}
}

func TestRunAnalysisFanOutIsConcurrent(t *testing.T) {
	t.Parallel()

	// The completer blocks every agent until all three have invoked the
	// model; sequential execution would deadlock on the first agent.
	llm := newBlockingCompleter(nil)
	store := agenttestx.NewStore()
	svc := New(llm, pipelineData(), store)

	result, err := svc.RunAnalysis(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("RunAnalysis() error = %v", err)
	}

	if result.Competitor == nil || result.Customer == nil || result.Market == nil {
		t.Fatalf("all three reports must be present: %+v", result)
	}
	if len(store.Reports) != 3 {
		t.Fatalf("expected three persisted reports, got %d", len(store.Reports))
	}
}

func TestRunFullDegradeAndContinue(t *testing.T) {
	t.Parallel()

	llm := newBlockingCompleter(map[string]bool{"competitor": true})
	store := agenttestx.NewStore()
	svc := New(llm, pipelineData(), store)

	report, err := svc.RunFull(context.Background(), ownerID)
	if err != nil {
		t.Fatalf("RunFull() error = %v", err)
	}

	// The degraded competitor report must not have blocked the join.
	competitor, err := store.LatestReport(context.Background(), ownerID, contractx.ReportKindCompetitor)
	if err != nil {
		t.Fatalf("competitor report missing: %v", err)
	}
	if !competitor.Degraded() {
		t.Fatal("competitor report should be degraded")
	}

	if report.Kind != contractx.ReportKindPricing {
		t.Fatalf("unexpected synthesis output kind: %s", report.Kind)
	}
	if report.Degraded() {
		t.Fatalf("synthesis must tolerate a degraded upstream report: %s", report.Summary)
	}
	if len(report.SourceReportIDs) != 3 {
		t.Fatalf("synthesis should cite all three upstream reports, got %d", len(report.SourceReportIDs))
	}
}
