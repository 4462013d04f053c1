package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	contractx "github.com/sirawit-t/agentic-pricing-pipeline/agent/contract"
	promptx "github.com/sirawit-t/agentic-pricing-pipeline/agent/prompt"
)

// customerWindow is the trailing window of orders the agent reasons over.
const customerWindow = 30 * 24 * time.Hour

// NewCustomer builds the agent that reads recent order aggregates and
// describes customer behavior.
func NewCustomer(llm contractx.Completer, data contractx.BusinessData, store contractx.ReportStore) *Agent {
	return newAgent(customerVariant{template: promptx.LoadPromptSet().Customer, now: time.Now}, llm, data, store)
}

type customerVariant struct {
	template string
	now      func() time.Time
}

func (customerVariant) Kind() contractx.ReportKind {
	return contractx.ReportKindCustomer
}

func (v customerVariant) Template() string {
	return v.template
}

func (v customerVariant) Gather(ctx context.Context, data contractx.BusinessData, ownerID int64) (any, error) {
	to := v.now().UTC()
	from := to.Add(-customerWindow)

	activity, err := data.CustomerActivity(ctx, ownerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load customer activity: %w", err)
	}
	if activity == nil || activity.OrderCount == 0 {
		return nil, fmt.Errorf("%w: no orders in the last 30 days", contractx.ErrUpstreamDataMissing)
	}

	return map[string]any{
		"window_days": 30,
		"activity":    activity,
	}, nil
}

type customerPayload struct {
	Summary      string          `json:"summary"`
	Demographics json.RawMessage `json:"demographics"`
	Events       json.RawMessage `json:"events"`
	Trends       json.RawMessage `json:"trends"`
}

func (customerVariant) Parse(payload json.RawMessage) (string, contractx.Sections, error) {
	var out customerPayload
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", contractx.Sections{}, fmt.Errorf("%w: customer payload: %v", contractx.ErrSchemaViolation, err)
	}
	summary := strings.TrimSpace(out.Summary)
	if summary == "" {
		return "", contractx.Sections{}, fmt.Errorf("%w: customer summary is empty", contractx.ErrSchemaViolation)
	}

	return summary, contractx.Sections{
		Customer: &contractx.CustomerSections{
			Demographics: out.Demographics,
			Events:       out.Events,
			Trends:       out.Trends,
		},
	}, nil
}
