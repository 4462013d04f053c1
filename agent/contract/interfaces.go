package contract

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Completer is the boundary to the external completion service: plain
// text in, plain text out. Callers own all structure recovery.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// BusinessData exposes read-only projections of first-party entities,
// scoped by owner.
type BusinessData interface {
	Items(ctx context.Context, ownerID int64) ([]Item, error)
	CompetitorPrices(ctx context.Context, ownerID int64) ([]CompetitorPrice, error)
	SalesByItem(ctx context.Context, ownerID int64, from, to time.Time) ([]SalesAggregate, error)
	CustomerActivity(ctx context.Context, ownerID int64, from, to time.Time) (*CustomerActivity, error)
}

// ReportStore is the persistence boundary for pipeline output. Reports
// are insert-only; experiments additionally allow a guarded status and
// evaluation update.
type ReportStore interface {
	InsertReport(ctx context.Context, r *Report) error
	LatestReport(ctx context.Context, ownerID int64, kind ReportKind) (*Report, error)
	ReportByID(ctx context.Context, id uuid.UUID) (*Report, error)

	// InsertExperiment persists the experiment and its price changes in
	// one transaction.
	InsertExperiment(ctx context.Context, exp *Experiment, changes []PriceChange) error
	ExperimentByID(ctx context.Context, id uuid.UUID) (*Experiment, error)
	PriceChanges(ctx context.Context, experimentID uuid.UUID) ([]PriceChange, error)

	// SetExperimentOutcome advances the status and stores the evaluation
	// payload atomically. Returns ErrInvalidTransition when the move
	// would regress the lifecycle.
	SetExperimentOutcome(ctx context.Context, id uuid.UUID, status ExperimentStatus, evaluation json.RawMessage) error

	// SetExperimentEvaluation stores an evaluation payload without
	// touching the status, used by the evaluator's error recovery path.
	SetExperimentEvaluation(ctx context.Context, id uuid.UUID, evaluation json.RawMessage) error
}
