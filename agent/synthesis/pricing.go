// Package synthesis merges the three analysis reports and first-party
// sales data into a pricing report with per-item recommendations.
package synthesis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/sirawit-t/agentic-pricing-pipeline/agent/contract"
	extractx "github.com/sirawit-t/agentic-pricing-pipeline/agent/extract"
	promptx "github.com/sirawit-t/agentic-pricing-pipeline/agent/prompt"
)

// salesWindow is the trailing window of first-party sales fed to the model.
const salesWindow = 30 * 24 * time.Hour

type Agent struct {
	llm      contractx.Completer
	data     contractx.BusinessData
	store    contractx.ReportStore
	template string
	now      func() time.Time
}

func New(llm contractx.Completer, data contractx.BusinessData, store contractx.ReportStore) *Agent {
	return &Agent{
		llm:      llm,
		data:     data,
		store:    store,
		template: promptx.LoadPromptSet().Pricing,
		now:      time.Now,
	}
}

// Run synthesizes and persists one pricing report. Upstream reports are
// individually optional: missing or degraded analysis rows narrow the
// prompt, they never fail the stage. The returned error is non-nil only
// for persistence failure.
func (a *Agent) Run(ctx context.Context, ownerID int64) (*contractx.Report, error) {
	summary, sections, sources, genErr := a.generate(ctx, ownerID)
	if genErr != nil {
		msg := genErr.Error()
		summary = fmt.Sprintf("%s generating pricing report: %s", contractx.ErrorMarker, msg)
		sections = contractx.DegradedSections(contractx.ReportKindPricing, msg)
		log.Warn().Err(genErr).Int64("owner_id", ownerID).Msg("pricing synthesis degraded")
	}

	report := &contractx.Report{
		ID:              uuid.New(),
		OwnerID:         ownerID,
		Kind:            contractx.ReportKindPricing,
		Summary:         summary,
		Sections:        sections,
		SourceReportIDs: sources,
		CreatedAt:       a.now().UTC(),
	}

	if err := a.store.InsertReport(ctx, report); err != nil {
		return nil, fmt.Errorf("persist pricing report: %w", err)
	}

	recCount := 0
	if report.Sections.Pricing != nil {
		recCount = len(report.Sections.Pricing.Recommendations)
	}
	log.Info().Int64("owner_id", ownerID).Str("report_id", report.ID.String()).
		Int("recommendations", recCount).Bool("degraded", report.Degraded()).
		Msg("pricing report persisted")
	return report, nil
}

type upstreamView struct {
	Summary  string             `json:"summary"`
	Sections contractx.Sections `json:"sections"`
	Degraded bool               `json:"degraded"`
}

type pricingPayload struct {
	Summary         string            `json:"summary"`
	Recommendations []json.RawMessage `json:"recommendations"`
	Implementation  json.RawMessage   `json:"implementation"`
}

func (a *Agent) generate(ctx context.Context, ownerID int64) (string, contractx.Sections, []uuid.UUID, error) {
	upstream, sources, err := a.gatherUpstream(ctx, ownerID)
	if err != nil {
		return "", contractx.Sections{}, nil, err
	}

	items, err := a.data.Items(ctx, ownerID)
	if err != nil {
		return "", contractx.Sections{}, sources, fmt.Errorf("load items: %w", err)
	}
	if len(items) == 0 {
		return "", contractx.Sections{}, sources, fmt.Errorf("%w: no items to price", contractx.ErrUpstreamDataMissing)
	}

	to := a.now().UTC()
	sales, err := a.data.SalesByItem(ctx, ownerID, to.Add(-salesWindow), to)
	if err != nil {
		return "", contractx.Sections{}, sources, fmt.Errorf("load sales aggregates: %w", err)
	}

	input := map[string]any{
		"analysis_reports": upstream,
		"items":            items,
		"sales_last_30d":   sales,
	}
	encoded, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return "", contractx.Sections{}, sources, fmt.Errorf("marshal synthesis input: %w", err)
	}

	completion, err := a.llm.Complete(ctx, a.template+"\n\nBusiness data:\n"+string(encoded)+"\n")
	if err != nil {
		return "", contractx.Sections{}, sources, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}

	payload, err := extractx.Structured(completion)
	if err != nil {
		return "", contractx.Sections{}, sources, err
	}

	var out pricingPayload
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", contractx.Sections{}, sources, fmt.Errorf("%w: pricing payload: %v", contractx.ErrSchemaViolation, err)
	}
	summary := strings.TrimSpace(out.Summary)
	if summary == "" {
		return "", contractx.Sections{}, sources, fmt.Errorf("%w: pricing summary is empty", contractx.ErrSchemaViolation)
	}

	recs, rejected := validRecommendations(out.Recommendations)
	for _, rej := range rejected {
		log.Warn().Err(rej).Int64("owner_id", ownerID).Msg("dropping malformed recommendation entry")
	}

	if len(recs) == 0 {
		recs = MineRecommendations(summary, items)
		if len(recs) > 0 {
			log.Info().Int64("owner_id", ownerID).Int("recommendations", len(recs)).
				Msg("recovered recommendations from summary prose")
		}
	}
	if recs == nil {
		recs = []contractx.PriceRecommendation{}
	}

	sections := contractx.Sections{
		Pricing: &contractx.PricingSections{
			Recommendations: recs,
			Implementation:  out.Implementation,
		},
	}
	return summary, sections, sources, nil
}

// gatherUpstream reads the most recent report of each analysis kind.
// Absence is not an error; any other read failure is.
func (a *Agent) gatherUpstream(ctx context.Context, ownerID int64) (map[string]*upstreamView, []uuid.UUID, error) {
	kinds := []contractx.ReportKind{
		contractx.ReportKindCompetitor,
		contractx.ReportKindCustomer,
		contractx.ReportKindMarket,
	}

	upstream := make(map[string]*upstreamView, len(kinds))
	var sources []uuid.UUID
	for _, kind := range kinds {
		report, err := a.store.LatestReport(ctx, ownerID, kind)
		if err != nil {
			if errors.Is(err, contractx.ErrNotFound) {
				upstream[string(kind)] = nil
				continue
			}
			return nil, nil, fmt.Errorf("load latest %s report: %w", kind, err)
		}
		upstream[string(kind)] = &upstreamView{
			Summary:  report.Summary,
			Sections: report.Sections,
			Degraded: report.Degraded(),
		}
		sources = append(sources, report.ID)
	}
	return upstream, sources, nil
}
