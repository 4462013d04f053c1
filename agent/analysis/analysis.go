// Package analysis holds the three independent analysis agents. Each
// gathers its own projection of business data, asks the completion
// service for a schema-constrained assessment, and persists exactly one
// report per run. Failures never escape the agent: they become degraded
// reports so the synthesis stage always has a row to read.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/sirawit-t/agentic-pricing-pipeline/agent/contract"
	extractx "github.com/sirawit-t/agentic-pricing-pipeline/agent/extract"
)

type variant interface {
	Kind() contractx.ReportKind
	Gather(ctx context.Context, data contractx.BusinessData, ownerID int64) (any, error)
	Template() string
	Parse(payload json.RawMessage) (string, contractx.Sections, error)
}

// Agent runs one analysis variant end to end.
type Agent struct {
	v     variant
	llm   contractx.Completer
	data  contractx.BusinessData
	store contractx.ReportStore
	now   func() time.Time
}

func newAgent(v variant, llm contractx.Completer, data contractx.BusinessData, store contractx.ReportStore) *Agent {
	return &Agent{
		v:     v,
		llm:   llm,
		data:  data,
		store: store,
		now:   time.Now,
	}
}

// Run generates and persists one report. The returned error is non-nil
// only when the insert itself fails; every other failure is encoded in
// the persisted report.
func (a *Agent) Run(ctx context.Context, ownerID int64) (*contractx.Report, error) {
	kind := a.v.Kind()

	summary, sections, genErr := a.generate(ctx, ownerID)
	if genErr != nil {
		msg := genErr.Error()
		summary = fmt.Sprintf("%s generating %s report: %s", contractx.ErrorMarker, kind, msg)
		sections = contractx.DegradedSections(kind, msg)
		log.Warn().Err(genErr).Int64("owner_id", ownerID).Str("kind", string(kind)).Msg("analysis degraded")
	}

	report := &contractx.Report{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Kind:      kind,
		Summary:   summary,
		Sections:  sections,
		CreatedAt: a.now().UTC(),
	}

	if err := a.store.InsertReport(ctx, report); err != nil {
		return nil, fmt.Errorf("persist %s report: %w", kind, err)
	}

	log.Info().Int64("owner_id", ownerID).Str("kind", string(kind)).
		Str("report_id", report.ID.String()).Bool("degraded", report.Degraded()).
		Msg("analysis report persisted")
	return report, nil
}

func (a *Agent) generate(ctx context.Context, ownerID int64) (string, contractx.Sections, error) {
	gathered, err := a.v.Gather(ctx, a.data, ownerID)
	if err != nil {
		return "", contractx.Sections{}, err
	}

	prompt, err := renderPrompt(a.v.Template(), gathered)
	if err != nil {
		return "", contractx.Sections{}, err
	}

	completion, err := a.llm.Complete(ctx, prompt)
	if err != nil {
		return "", contractx.Sections{}, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}

	payload, err := extractx.Structured(completion)
	if err != nil {
		return "", contractx.Sections{}, err
	}

	return a.v.Parse(payload)
}

func renderPrompt(template string, gathered any) (string, error) {
	encoded, err := json.MarshalIndent(gathered, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal gathered data: %w", err)
	}
	return template + "\n\nBusiness data:\n" + string(encoded) + "\n", nil
}
