// Package experiment turns a pricing report into a scheduled experiment
// and later evaluates its causal effect from order history.
package experiment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/sirawit-t/agentic-pricing-pipeline/agent/contract"
	extractx "github.com/sirawit-t/agentic-pricing-pipeline/agent/extract"
	promptx "github.com/sirawit-t/agentic-pricing-pipeline/agent/prompt"
)

// defaultWindow is the experiment length used whenever the model's
// dates are absent or unparseable. The default must never throw.
const defaultWindow = 14 * 24 * time.Hour

type Planner struct {
	llm      contractx.Completer
	store    contractx.ReportStore
	template string
	now      func() time.Time
}

func NewPlanner(llm contractx.Completer, store contractx.ReportStore) *Planner {
	return &Planner{
		llm:      llm,
		store:    store,
		template: promptx.LoadPromptSet().Experiment,
		now:      time.Now,
	}
}

// Run plans one experiment from the given pricing report (uuid.Nil
// selects the owner's most recent one). The experiment and its price
// changes are inserted in a single transaction with status pending.
func (p *Planner) Run(ctx context.Context, ownerID int64, pricingReportID uuid.UUID) (*contractx.Experiment, error) {
	report, err := p.loadReport(ctx, ownerID, pricingReportID)
	if err != nil {
		return nil, err
	}

	plan := p.plan(ctx, report)

	now := p.now().UTC()
	exp := &contractx.Experiment{
		ID:              uuid.New(),
		OwnerID:         ownerID,
		PricingReportID: report.ID,
		Summary:         plan.summary,
		StartDate:       plan.startDate,
		EvaluationDate:  plan.evaluationDate,
		Status:          contractx.ExperimentPending,
		EvaluationPlan:  plan.evaluation,
		CreatedAt:       now,
	}

	changes := make([]contractx.PriceChange, 0, len(plan.entries))
	seen := make(map[int64]struct{}, len(plan.entries))
	for _, entry := range plan.entries {
		if entry.ProductID == nil || entry.CurrentPrice == nil || entry.NewPrice == nil {
			continue
		}
		if *entry.CurrentPrice <= 0 || *entry.NewPrice <= 0 {
			continue
		}
		if _, dup := seen[*entry.ProductID]; dup {
			continue
		}
		seen[*entry.ProductID] = struct{}{}
		changes = append(changes, contractx.PriceChange{
			ID:            uuid.New(),
			ExperimentID:  exp.ID,
			ItemID:        *entry.ProductID,
			OriginalPrice: *entry.CurrentPrice,
			NewPrice:      *entry.NewPrice,
		})
	}

	if err := p.store.InsertExperiment(ctx, exp, changes); err != nil {
		return nil, fmt.Errorf("persist experiment: %w", err)
	}

	log.Info().Int64("owner_id", ownerID).Str("experiment_id", exp.ID.String()).
		Int("price_changes", len(changes)).Time("start", exp.StartDate).
		Time("evaluation", exp.EvaluationDate).Msg("experiment planned")
	return exp, nil
}

func (p *Planner) loadReport(ctx context.Context, ownerID int64, id uuid.UUID) (*contractx.Report, error) {
	if id == uuid.Nil {
		report, err := p.store.LatestReport(ctx, ownerID, contractx.ReportKindPricing)
		if err != nil {
			return nil, fmt.Errorf("load latest pricing report: %w", err)
		}
		return report, nil
	}

	report, err := p.store.ReportByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load pricing report %s: %w", id, err)
	}
	if report.OwnerID != ownerID || report.Kind != contractx.ReportKindPricing {
		return nil, fmt.Errorf("load pricing report %s: %w", id, contractx.ErrNotFound)
	}
	return report, nil
}

type planEntry struct {
	ProductID    *int64   `json:"product_id"`
	ItemName     string   `json:"item_name"`
	CurrentPrice *float64 `json:"current_price"`
	NewPrice     *float64 `json:"new_price"`
}

type planPayload struct {
	Summary        string          `json:"summary"`
	StartDate      string          `json:"start_date"`
	EvaluationDate string          `json:"evaluation_date"`
	Implementation []planEntry     `json:"implementation"`
	Evaluation     json.RawMessage `json:"evaluation"`
}

type plan struct {
	summary        string
	startDate      time.Time
	evaluationDate time.Time
	entries        []planEntry
	evaluation     json.RawMessage
}

// plan asks the model to schedule the experiment. It never fails: when
// the model output is unusable the plan falls back to the report's own
// recommendations with the default window.
func (p *Planner) plan(ctx context.Context, report *contractx.Report) plan {
	out, err := p.invoke(ctx, report)
	if err != nil {
		log.Warn().Err(err).Str("report_id", report.ID.String()).
			Msg("experiment plan model output unusable, planning from report recommendations")
		return p.fallbackPlan(report)
	}

	result := plan{
		summary:    strings.TrimSpace(out.Summary),
		entries:    out.Implementation,
		evaluation: out.Evaluation,
	}
	if result.summary == "" {
		result.summary = fmt.Sprintf("Pricing experiment for report %s", report.ID)
	}
	result.startDate, result.evaluationDate = p.resolveDates(out.StartDate, out.EvaluationDate)
	return result
}

func (p *Planner) invoke(ctx context.Context, report *contractx.Report) (*planPayload, error) {
	input := map[string]any{
		"summary":  report.Summary,
		"sections": report.Sections,
	}
	encoded, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal pricing report: %w", err)
	}

	completion, err := p.llm.Complete(ctx, p.template+"\n\nPricing report:\n"+string(encoded)+"\n")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}

	payload, err := extractx.Structured(completion)
	if err != nil {
		return nil, err
	}

	var out planPayload
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("%w: experiment plan payload: %v", contractx.ErrSchemaViolation, err)
	}
	return &out, nil
}

// resolveDates parses the model's ISO dates. Any gap, parse failure, or
// inverted window falls back to [now, now+14d].
func (p *Planner) resolveDates(start, evaluation string) (time.Time, time.Time) {
	now := p.now().UTC()

	startDate, err := time.Parse(time.DateOnly, strings.TrimSpace(start))
	if err != nil {
		return now, now.Add(defaultWindow)
	}
	evaluationDate, err := time.Parse(time.DateOnly, strings.TrimSpace(evaluation))
	if err != nil {
		return now, now.Add(defaultWindow)
	}
	if !evaluationDate.After(startDate) {
		return now, now.Add(defaultWindow)
	}
	return startDate, evaluationDate
}

// fallbackPlan builds the implementation list straight from the pricing
// report so a planner run always leaves a terminal record.
func (p *Planner) fallbackPlan(report *contractx.Report) plan {
	now := p.now().UTC()
	result := plan{
		summary:        fmt.Sprintf("Pricing experiment for report %s", report.ID),
		startDate:      now,
		evaluationDate: now.Add(defaultWindow),
	}

	if report.Sections.Pricing == nil {
		return result
	}
	for _, rec := range report.Sections.Pricing.Recommendations {
		rec := rec
		result.entries = append(result.entries, planEntry{
			ProductID:    &rec.ItemID,
			ItemName:     rec.ItemName,
			CurrentPrice: &rec.CurrentPrice,
			NewPrice:     &rec.RecommendedPrice,
		})
	}
	return result
}
