package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/sirawit-t/agentic-pricing-pipeline/agent/contract"
)

const topItemLimit = 10

type Config struct {
	DSN             string        `envconfig:"DSN" required:"true"`
	MaxOpenConns    int           `envconfig:"MAX_OPEN_CONNS" default:"10"`
	ConnMaxIdleTime time.Duration `envconfig:"CONN_MAX_IDLE_TIME" default:"5m"`
}

// Store implements the report and business-data boundaries on Postgres.
type Store struct {
	db *bun.DB
}

func New(db *bun.DB) *Store {
	return &Store{db: db}
}

// Connect opens a pgdriver-backed bun handle and pings it once so that
// bad credentials fail at startup rather than on the first query.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	db := bun.NewDB(sqldb, pgdialect.New())
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(db), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) InsertReport(ctx context.Context, r *contractx.Report) error {
	row, err := reportToRow(r)
	if err != nil {
		return err
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (s *Store) LatestReport(ctx context.Context, ownerID int64, kind contractx.ReportKind) (*contractx.Report, error) {
	row := new(reportRow)
	err := s.db.NewSelect().Model(row).
		Where("r.owner_id = ?", ownerID).
		Where("r.kind = ?", string(kind)).
		Order("r.created_at DESC", "r.id DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no %s report for owner %d", contractx.ErrNotFound, kind, ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("select latest report: %w", err)
	}
	return reportFromRow(row)
}

func (s *Store) ReportByID(ctx context.Context, id uuid.UUID) (*contractx.Report, error) {
	row := new(reportRow)
	err := s.db.NewSelect().Model(row).
		Where("r.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: report %s", contractx.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("select report: %w", err)
	}
	return reportFromRow(row)
}

func (s *Store) InsertExperiment(ctx context.Context, exp *contractx.Experiment, changes []contractx.PriceChange) error {
	expRow := experimentToRow(exp)
	changeRows := make([]priceChangeRow, 0, len(changes))
	for _, c := range changes {
		changeRows = append(changeRows, priceChangeToRow(c))
	}

	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(expRow).Exec(ctx); err != nil {
			return fmt.Errorf("insert experiment: %w", err)
		}
		if len(changeRows) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&changeRows).Exec(ctx); err != nil {
			return fmt.Errorf("insert price changes: %w", err)
		}
		return nil
	})
	return err
}

func (s *Store) ExperimentByID(ctx context.Context, id uuid.UUID) (*contractx.Experiment, error) {
	row := new(experimentRow)
	err := s.db.NewSelect().Model(row).
		Where("e.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: experiment %s", contractx.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("select experiment: %w", err)
	}
	return experimentFromRow(row), nil
}

func (s *Store) PriceChanges(ctx context.Context, experimentID uuid.UUID) ([]contractx.PriceChange, error) {
	var rows []priceChangeRow
	err := s.db.NewSelect().Model(&rows).
		Where("pc.experiment_id = ?", experimentID).
		Order("pc.item_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select price changes: %w", err)
	}
	changes := make([]contractx.PriceChange, 0, len(rows))
	for _, row := range rows {
		changes = append(changes, priceChangeFromRow(row))
	}
	return changes, nil
}

// SetExperimentOutcome locks the row, checks the lifecycle guard, and
// writes the new status with its evaluation payload. Concurrent callers
// serialize on the row lock, so a terminal state can never be overwritten.
func (s *Store) SetExperimentOutcome(ctx context.Context, id uuid.UUID, status contractx.ExperimentStatus, evaluation json.RawMessage) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		row := new(experimentRow)
		err := tx.NewSelect().Model(row).
			Where("e.id = ?", id).
			For("UPDATE").
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: experiment %s", contractx.ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("lock experiment: %w", err)
		}

		current := contractx.ExperimentStatus(row.Status)
		if !current.CanTransitionTo(status) {
			return fmt.Errorf("%w: %s -> %s", contractx.ErrInvalidTransition, current, status)
		}

		q := tx.NewUpdate().Model((*experimentRow)(nil)).
			Set("status = ?", string(status)).
			Where("e.id = ?", id)
		if len(evaluation) > 0 {
			q = q.Set("evaluation = ?", string(evaluation))
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("update experiment outcome: %w", err)
		}
		return nil
	})
}

func (s *Store) SetExperimentEvaluation(ctx context.Context, id uuid.UUID, evaluation json.RawMessage) error {
	res, err := s.db.NewUpdate().Model((*experimentRow)(nil)).
		Set("evaluation = ?", string(evaluation)).
		Where("e.id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update experiment evaluation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: experiment %s", contractx.ErrNotFound, id)
	}
	return nil
}

func (s *Store) Items(ctx context.Context, ownerID int64) ([]contractx.Item, error) {
	var rows []itemRow
	err := s.db.NewSelect().Model(&rows).
		Where("i.owner_id = ?", ownerID).
		Order("i.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select items: %w", err)
	}
	items := make([]contractx.Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, contractx.Item{
			ID:       row.ID,
			Name:     row.Name,
			Category: row.Category,
			Price:    row.Price,
			Cost:     row.Cost,
		})
	}
	return items, nil
}

func (s *Store) CompetitorPrices(ctx context.Context, ownerID int64) ([]contractx.CompetitorPrice, error) {
	var rows []competitorPriceRow
	err := s.db.NewSelect().Model(&rows).
		Where("cp.owner_id = ?", ownerID).
		Order("cp.captured_at DESC", "cp.id DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select competitor prices: %w", err)
	}
	prices := make([]contractx.CompetitorPrice, 0, len(rows))
	for _, row := range rows {
		prices = append(prices, contractx.CompetitorPrice{
			Competitor: row.Competitor,
			ItemName:   row.ItemName,
			Price:      row.Price,
			CapturedAt: row.CapturedAt,
		})
	}
	return prices, nil
}

func (s *Store) SalesByItem(ctx context.Context, ownerID int64, from, to time.Time) ([]contractx.SalesAggregate, error) {
	var aggs []contractx.SalesAggregate
	err := s.db.NewSelect().
		Model((*orderLineRow)(nil)).
		ColumnExpr("ol.item_id AS item_id").
		ColumnExpr("i.name AS item_name").
		ColumnExpr("SUM(ol.quantity) AS quantity").
		ColumnExpr("SUM(ol.quantity * ol.unit_price) AS revenue").
		Join("JOIN orders AS o ON o.id = ol.order_id").
		Join("JOIN items AS i ON i.id = ol.item_id").
		Where("o.owner_id = ?", ownerID).
		Where("o.ordered_at >= ?", from).
		Where("o.ordered_at < ?", to).
		GroupExpr("ol.item_id, i.name").
		OrderExpr("revenue DESC").
		Scan(ctx, &aggs)
	if err != nil {
		return nil, fmt.Errorf("aggregate sales: %w", err)
	}
	return aggs, nil
}

func (s *Store) CustomerActivity(ctx context.Context, ownerID int64, from, to time.Time) (*contractx.CustomerActivity, error) {
	var totals struct {
		OrderCount   int64   `bun:"order_count"`
		TotalRevenue float64 `bun:"total_revenue"`
	}
	err := s.db.NewSelect().
		Model((*orderRow)(nil)).
		ColumnExpr("COUNT(DISTINCT o.id) AS order_count").
		ColumnExpr("COALESCE(SUM(ol.quantity * ol.unit_price), 0) AS total_revenue").
		Join("LEFT JOIN order_lines AS ol ON ol.order_id = o.id").
		Where("o.owner_id = ?", ownerID).
		Where("o.ordered_at >= ?", from).
		Where("o.ordered_at < ?", to).
		Scan(ctx, &totals)
	if err != nil {
		return nil, fmt.Errorf("aggregate orders: %w", err)
	}

	activity := &contractx.CustomerActivity{
		OrderCount:   totals.OrderCount,
		TotalRevenue: totals.TotalRevenue,
	}
	if totals.OrderCount > 0 {
		activity.AverageOrderValue = totals.TotalRevenue / float64(totals.OrderCount)
	}

	top, err := s.SalesByItem(ctx, ownerID, from, to)
	if err != nil {
		return nil, err
	}
	if len(top) > topItemLimit {
		top = top[:topItemLimit]
	}
	activity.TopItems = top
	return activity, nil
}

func reportToRow(r *contractx.Report) (*reportRow, error) {
	sections, err := json.Marshal(r.Sections)
	if err != nil {
		return nil, fmt.Errorf("marshal report sections: %w", err)
	}
	var sources json.RawMessage
	if len(r.SourceReportIDs) > 0 {
		sources, err = json.Marshal(r.SourceReportIDs)
		if err != nil {
			return nil, fmt.Errorf("marshal source report ids: %w", err)
		}
	}
	return &reportRow{
		ID:              r.ID,
		OwnerID:         r.OwnerID,
		Kind:            string(r.Kind),
		Summary:         r.Summary,
		Sections:        sections,
		SourceReportIDs: sources,
		CreatedAt:       r.CreatedAt,
	}, nil
}

func reportFromRow(row *reportRow) (*contractx.Report, error) {
	var sections contractx.Sections
	if len(row.Sections) > 0 {
		if err := json.Unmarshal(row.Sections, &sections); err != nil {
			return nil, fmt.Errorf("unmarshal report sections: %w", err)
		}
	}
	var sources []uuid.UUID
	if len(row.SourceReportIDs) > 0 {
		if err := json.Unmarshal(row.SourceReportIDs, &sources); err != nil {
			return nil, fmt.Errorf("unmarshal source report ids: %w", err)
		}
	}
	return &contractx.Report{
		ID:              row.ID,
		OwnerID:         row.OwnerID,
		Kind:            contractx.ReportKind(row.Kind),
		Summary:         row.Summary,
		Sections:        sections,
		SourceReportIDs: sources,
		CreatedAt:       row.CreatedAt,
	}, nil
}

func experimentToRow(exp *contractx.Experiment) *experimentRow {
	return &experimentRow{
		ID:              exp.ID,
		OwnerID:         exp.OwnerID,
		PricingReportID: exp.PricingReportID,
		Summary:         exp.Summary,
		StartDate:       exp.StartDate,
		EvaluationDate:  exp.EvaluationDate,
		Status:          string(exp.Status),
		EvaluationPlan:  exp.EvaluationPlan,
		Evaluation:      exp.Evaluation,
		CreatedAt:       exp.CreatedAt,
	}
}

func experimentFromRow(row *experimentRow) *contractx.Experiment {
	return &contractx.Experiment{
		ID:              row.ID,
		OwnerID:         row.OwnerID,
		PricingReportID: row.PricingReportID,
		Summary:         row.Summary,
		StartDate:       row.StartDate,
		EvaluationDate:  row.EvaluationDate,
		Status:          contractx.ExperimentStatus(row.Status),
		EvaluationPlan:  row.EvaluationPlan,
		Evaluation:      row.Evaluation,
		CreatedAt:       row.CreatedAt,
	}
}

func priceChangeToRow(c contractx.PriceChange) priceChangeRow {
	return priceChangeRow{
		ID:             c.ID,
		ExperimentID:   c.ExperimentID,
		ItemID:         c.ItemID,
		OriginalPrice:  c.OriginalPrice,
		NewPrice:       c.NewPrice,
		Implemented:    c.Implemented,
		PriceHistoryID: c.PriceHistoryID,
	}
}

func priceChangeFromRow(row priceChangeRow) contractx.PriceChange {
	return contractx.PriceChange{
		ID:             row.ID,
		ExperimentID:   row.ExperimentID,
		ItemID:         row.ItemID,
		OriginalPrice:  row.OriginalPrice,
		NewPrice:       row.NewPrice,
		Implemented:    row.Implemented,
		PriceHistoryID: row.PriceHistoryID,
	}
}
