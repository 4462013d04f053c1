package contract

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ReportKind string

const (
	ReportKindCompetitor ReportKind = "competitor"
	ReportKindCustomer   ReportKind = "customer"
	ReportKindMarket     ReportKind = "market"
	ReportKindPricing    ReportKind = "pricing"
)

// ErrorMarker prefixes the summary of every degraded report so that
// downstream consumers can detect degradation without parsing sections.
const ErrorMarker = "Error"

// Report is the persisted output of one analysis or synthesis stage.
// Rows are insert-only: a later run supersedes an earlier one by
// timestamp, it never mutates it.
type Report struct {
	ID              uuid.UUID
	OwnerID         int64
	Kind            ReportKind
	Summary         string
	Sections        Sections
	SourceReportIDs []uuid.UUID
	CreatedAt       time.Time
}

func (r *Report) Degraded() bool {
	return r != nil && strings.HasPrefix(r.Summary, ErrorMarker)
}

// Sections is a tagged variant: exactly one field matching the report
// kind is non-nil. Section fields inside a variant are raw JSON trees;
// nil means the model omitted that section.
type Sections struct {
	Competitor *CompetitorSections `json:"competitor,omitempty"`
	Customer   *CustomerSections   `json:"customer,omitempty"`
	Market     *MarketSections     `json:"market,omitempty"`
	Pricing    *PricingSections    `json:"pricing,omitempty"`
}

type CompetitorSections struct {
	Insights    json.RawMessage `json:"insights,omitempty"`
	Positioning json.RawMessage `json:"positioning,omitempty"`
}

type CustomerSections struct {
	Demographics json.RawMessage `json:"demographics,omitempty"`
	Events       json.RawMessage `json:"events,omitempty"`
	Trends       json.RawMessage `json:"trends,omitempty"`
}

type MarketSections struct {
	Trends        json.RawMessage `json:"trends,omitempty"`
	Opportunities json.RawMessage `json:"opportunities,omitempty"`
	Threats       json.RawMessage `json:"threats,omitempty"`
}

type PricingSections struct {
	Recommendations []PriceRecommendation `json:"recommendations"`
	Implementation  json.RawMessage       `json:"implementation,omitempty"`
}

type PriceRecommendation struct {
	ItemID           int64   `json:"item_id"`
	ItemName         string  `json:"item_name"`
	CurrentPrice     float64 `json:"current_price"`
	RecommendedPrice float64 `json:"recommended_price"`
	ChangePercentage float64 `json:"change_percentage"`
	Rationale        string  `json:"rationale"`
}

type ExperimentStatus string

const (
	ExperimentPending     ExperimentStatus = "pending"
	ExperimentImplemented ExperimentStatus = "implemented"
	ExperimentCancelled   ExperimentStatus = "cancelled"
	ExperimentEvaluated   ExperimentStatus = "evaluated"
)

var statusRank = map[ExperimentStatus]int{
	ExperimentPending:     0,
	ExperimentImplemented: 1,
	ExperimentCancelled:   2,
	ExperimentEvaluated:   2,
}

// CanTransitionTo reports whether moving to the target status keeps the
// lifecycle monotonic. Terminal states never regress.
func (s ExperimentStatus) CanTransitionTo(to ExperimentStatus) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	target, ok := statusRank[to]
	if !ok {
		return false
	}
	return target > from
}

// Experiment is a planned pricing experiment derived from a PricingReport.
// EvaluationPlan is the planner's metrics/risks/mitigation guidance;
// Evaluation holds the results once the evaluator has run.
type Experiment struct {
	ID              uuid.UUID
	OwnerID         int64
	PricingReportID uuid.UUID
	Summary         string
	StartDate       time.Time
	EvaluationDate  time.Time
	Status          ExperimentStatus
	EvaluationPlan  json.RawMessage
	Evaluation      json.RawMessage
	CreatedAt       time.Time
}

// PriceChange is one planned per-item change inside an experiment.
// PriceHistoryID links to the price-history row created when external
// logic applies the change.
type PriceChange struct {
	ID             uuid.UUID
	ExperimentID   uuid.UUID
	ItemID         int64
	OriginalPrice  float64
	NewPrice       float64
	Implemented    bool
	PriceHistoryID *int64
}

// EvaluationResult is the structured payload stored on an experiment
// after evaluation (or cancellation, or an aggregation error).
type EvaluationResult struct {
	Status         string           `json:"status"`
	Reason         string           `json:"reason,omitempty"`
	Error          string           `json:"error,omitempty"`
	SuccessRate    float64          `json:"success_rate"`
	ItemsEvaluated int              `json:"items_evaluated"`
	Items          []ItemEvaluation `json:"items,omitempty"`
	EvaluatedAt    time.Time        `json:"evaluated_at,omitzero"`
}

type ItemEvaluation struct {
	ItemID            int64   `json:"item_id"`
	OriginalPrice     float64 `json:"original_price"`
	NewPrice          float64 `json:"new_price"`
	PriceChangePct    float64 `json:"price_change_pct"`
	QuantityBefore    float64 `json:"quantity_before"`
	QuantityAfter     float64 `json:"quantity_after"`
	QuantityChangePct float64 `json:"quantity_change_pct"`
	RevenueBefore     float64 `json:"revenue_before"`
	RevenueAfter      float64 `json:"revenue_after"`
	RevenueChangePct  float64 `json:"revenue_change_pct"`
	Elasticity        float64 `json:"elasticity"`
	Success           bool    `json:"success"`
}

// Item is a first-party catalogue entry.
type Item struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category,omitempty"`
	Price    float64 `json:"price"`
	Cost     float64 `json:"cost"`
}

// CompetitorPrice is one captured competitor item/price snapshot.
type CompetitorPrice struct {
	Competitor string    `json:"competitor"`
	ItemName   string    `json:"item_name"`
	Price      float64   `json:"price"`
	CapturedAt time.Time `json:"captured_at"`
}

// SalesAggregate is per-item quantity and revenue over a window.
type SalesAggregate struct {
	ItemID   int64   `json:"item_id"`
	ItemName string  `json:"item_name"`
	Quantity float64 `json:"quantity"`
	Revenue  float64 `json:"revenue"`
}

// CustomerActivity summarizes recent order behavior for an owner.
type CustomerActivity struct {
	OrderCount        int64            `json:"order_count"`
	TotalRevenue      float64          `json:"total_revenue"`
	AverageOrderValue float64          `json:"average_order_value"`
	TopItems          []SalesAggregate `json:"top_items,omitempty"`
}
