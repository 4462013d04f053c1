package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	contractx "github.com/sirawit-t/agentic-pricing-pipeline/agent/contract"
	promptx "github.com/sirawit-t/agentic-pricing-pipeline/agent/prompt"
)

// NewMarket builds the agent that produces a market-level assessment.
// It has no hard data dependency; the catalogue only gives the model
// category context, so an empty catalogue still produces a report.
func NewMarket(llm contractx.Completer, data contractx.BusinessData, store contractx.ReportStore) *Agent {
	return newAgent(marketVariant{template: promptx.LoadPromptSet().Market}, llm, data, store)
}

type marketVariant struct {
	template string
}

func (marketVariant) Kind() contractx.ReportKind {
	return contractx.ReportKindMarket
}

func (v marketVariant) Template() string {
	return v.template
}

func (marketVariant) Gather(ctx context.Context, data contractx.BusinessData, ownerID int64) (any, error) {
	items, err := data.Items(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}

	type catalogueEntry struct {
		Name     string `json:"name"`
		Category string `json:"category,omitempty"`
	}
	catalogue := make([]catalogueEntry, 0, len(items))
	for _, it := range items {
		catalogue = append(catalogue, catalogueEntry{Name: it.Name, Category: it.Category})
	}

	return map[string]any{
		"catalogue": catalogue,
	}, nil
}

type marketPayload struct {
	Summary       string          `json:"summary"`
	Trends        json.RawMessage `json:"trends"`
	Opportunities json.RawMessage `json:"opportunities"`
	Threats       json.RawMessage `json:"threats"`
}

func (marketVariant) Parse(payload json.RawMessage) (string, contractx.Sections, error) {
	var out marketPayload
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", contractx.Sections{}, fmt.Errorf("%w: market payload: %v", contractx.ErrSchemaViolation, err)
	}
	summary := strings.TrimSpace(out.Summary)
	if summary == "" {
		return "", contractx.Sections{}, fmt.Errorf("%w: market summary is empty", contractx.ErrSchemaViolation)
	}

	return summary, contractx.Sections{
		Market: &contractx.MarketSections{
			Trends:        out.Trends,
			Opportunities: out.Opportunities,
			Threats:       out.Threats,
		},
	}, nil
}
