package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	contractx "github.com/sirawit-t/agentic-pricing-pipeline/agent/contract"
	promptx "github.com/sirawit-t/agentic-pricing-pipeline/agent/prompt"
)

// NewCompetitor builds the agent that assesses competitor positioning
// from captured item/price snapshots.
func NewCompetitor(llm contractx.Completer, data contractx.BusinessData, store contractx.ReportStore) *Agent {
	return newAgent(competitorVariant{template: promptx.LoadPromptSet().Competitor}, llm, data, store)
}

type competitorVariant struct {
	template string
}

func (competitorVariant) Kind() contractx.ReportKind {
	return contractx.ReportKindCompetitor
}

func (v competitorVariant) Template() string {
	return v.template
}

func (competitorVariant) Gather(ctx context.Context, data contractx.BusinessData, ownerID int64) (any, error) {
	prices, err := data.CompetitorPrices(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load competitor prices: %w", err)
	}
	if len(prices) == 0 {
		return nil, fmt.Errorf("%w: no competitor price snapshots", contractx.ErrUpstreamDataMissing)
	}

	items, err := data.Items(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}

	return map[string]any{
		"competitor_prices": prices,
		"own_items":         items,
	}, nil
}

type competitorPayload struct {
	Summary     string          `json:"summary"`
	Insights    json.RawMessage `json:"insights"`
	Positioning json.RawMessage `json:"positioning"`
}

func (competitorVariant) Parse(payload json.RawMessage) (string, contractx.Sections, error) {
	var out competitorPayload
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", contractx.Sections{}, fmt.Errorf("%w: competitor payload: %v", contractx.ErrSchemaViolation, err)
	}
	summary := strings.TrimSpace(out.Summary)
	if summary == "" {
		return "", contractx.Sections{}, fmt.Errorf("%w: competitor summary is empty", contractx.ErrSchemaViolation)
	}

	return summary, contractx.Sections{
		Competitor: &contractx.CompetitorSections{
			Insights:    out.Insights,
			Positioning: out.Positioning,
		},
	}, nil
}
