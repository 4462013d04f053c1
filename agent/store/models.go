package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type reportRow struct {
	bun.BaseModel `bun:"table:reports,alias:r"`

	ID              uuid.UUID       `bun:"id,pk,type:uuid"`
	OwnerID         int64           `bun:"owner_id,notnull"`
	Kind            string          `bun:"kind,notnull"`
	Summary         string          `bun:"summary,notnull"`
	Sections        json.RawMessage `bun:"sections,type:jsonb"`
	SourceReportIDs json.RawMessage `bun:"source_report_ids,type:jsonb,nullzero"`
	CreatedAt       time.Time       `bun:"created_at,notnull"`
}

type experimentRow struct {
	bun.BaseModel `bun:"table:experiments,alias:e"`

	ID              uuid.UUID       `bun:"id,pk,type:uuid"`
	OwnerID         int64           `bun:"owner_id,notnull"`
	PricingReportID uuid.UUID       `bun:"pricing_report_id,type:uuid,notnull"`
	Summary         string          `bun:"summary,notnull"`
	StartDate       time.Time       `bun:"start_date,notnull"`
	EvaluationDate  time.Time       `bun:"evaluation_date,notnull"`
	Status          string          `bun:"status,notnull"`
	EvaluationPlan  json.RawMessage `bun:"evaluation_plan,type:jsonb,nullzero"`
	Evaluation      json.RawMessage `bun:"evaluation,type:jsonb,nullzero"`
	CreatedAt       time.Time       `bun:"created_at,notnull"`
}

type priceChangeRow struct {
	bun.BaseModel `bun:"table:experiment_price_changes,alias:pc"`

	ID             uuid.UUID `bun:"id,pk,type:uuid"`
	ExperimentID   uuid.UUID `bun:"experiment_id,type:uuid,notnull"`
	ItemID         int64     `bun:"item_id,notnull"`
	OriginalPrice  float64   `bun:"original_price,notnull"`
	NewPrice       float64   `bun:"new_price,notnull"`
	Implemented    bool      `bun:"implemented,notnull,default:false"`
	PriceHistoryID *int64    `bun:"price_history_id,nullzero"`
}

type itemRow struct {
	bun.BaseModel `bun:"table:items,alias:i"`

	ID       int64   `bun:"id,pk,autoincrement"`
	OwnerID  int64   `bun:"owner_id,notnull"`
	Name     string  `bun:"name,notnull"`
	Category string  `bun:"category"`
	Price    float64 `bun:"price,notnull"`
	Cost     float64 `bun:"cost"`
}

type competitorPriceRow struct {
	bun.BaseModel `bun:"table:competitor_prices,alias:cp"`

	ID         int64     `bun:"id,pk,autoincrement"`
	OwnerID    int64     `bun:"owner_id,notnull"`
	Competitor string    `bun:"competitor,notnull"`
	ItemName   string    `bun:"item_name,notnull"`
	Price      float64   `bun:"price,notnull"`
	CapturedAt time.Time `bun:"captured_at,notnull"`
}

// orderRow and orderLineRow are read-only projections of the first-party
// order schema; this package never writes them.
type orderRow struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID        int64     `bun:"id,pk,autoincrement"`
	OwnerID   int64     `bun:"owner_id,notnull"`
	OrderedAt time.Time `bun:"ordered_at,notnull"`
}

type orderLineRow struct {
	bun.BaseModel `bun:"table:order_lines,alias:ol"`

	ID        int64   `bun:"id,pk,autoincrement"`
	OrderID   int64   `bun:"order_id,notnull"`
	ItemID    int64   `bun:"item_id,notnull"`
	Quantity  float64 `bun:"quantity,notnull"`
	UnitPrice float64 `bun:"unit_price,notnull"`
}
