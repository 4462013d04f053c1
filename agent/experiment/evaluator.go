package experiment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	contractx "github.com/sirawit-t/agentic-pricing-pipeline/agent/contract"
)

const cancelledReason = "No price changes were implemented"

type Evaluator struct {
	data  contractx.BusinessData
	store contractx.ReportStore
	now   func() time.Time
}

func NewEvaluator(data contractx.BusinessData, store contractx.ReportStore) *Evaluator {
	return &Evaluator{
		data:  data,
		store: store,
		now:   time.Now,
	}
}

// Run evaluates the experiment's implemented price changes against two
// symmetric sales windows around the start date. With nothing
// implemented the experiment is cancelled. Aggregation failures are
// recorded in the evaluation payload with the status left untouched so
// the evaluation can be retried.
func (e *Evaluator) Run(ctx context.Context, experimentID uuid.UUID) (*contractx.Experiment, error) {
	exp, err := e.store.ExperimentByID(ctx, experimentID)
	if err != nil {
		return nil, fmt.Errorf("load experiment: %w", err)
	}

	changes, err := e.store.PriceChanges(ctx, experimentID)
	if err != nil {
		return nil, fmt.Errorf("load price changes: %w", err)
	}

	var implemented []contractx.PriceChange
	for _, ch := range changes {
		if ch.Implemented {
			implemented = append(implemented, ch)
		}
	}

	if len(implemented) == 0 {
		return e.finish(ctx, exp, contractx.ExperimentCancelled, &contractx.EvaluationResult{
			Status: string(contractx.ExperimentCancelled),
			Reason: cancelledReason,
		})
	}

	result, aggErr := e.evaluate(ctx, exp, implemented)
	if aggErr != nil {
		// Non-terminal: record the failure, keep the status, allow retry.
		payload, err := json.Marshal(contractx.EvaluationResult{Status: "error", Error: aggErr.Error()})
		if err != nil {
			return nil, fmt.Errorf("marshal evaluation error payload: %w", err)
		}
		if err := e.store.SetExperimentEvaluation(ctx, experimentID, payload); err != nil {
			return nil, fmt.Errorf("persist evaluation error: %w", err)
		}
		exp.Evaluation = payload
		log.Warn().Err(aggErr).Str("experiment_id", experimentID.String()).
			Msg("experiment evaluation failed, recorded for retry")
		return exp, nil
	}

	return e.finish(ctx, exp, contractx.ExperimentEvaluated, result)
}

func (e *Evaluator) finish(ctx context.Context, exp *contractx.Experiment, status contractx.ExperimentStatus, result *contractx.EvaluationResult) (*contractx.Experiment, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal evaluation result: %w", err)
	}
	if err := e.store.SetExperimentOutcome(ctx, exp.ID, status, payload); err != nil {
		return nil, fmt.Errorf("persist experiment outcome: %w", err)
	}
	exp.Status = status
	exp.Evaluation = payload

	log.Info().Str("experiment_id", exp.ID.String()).Str("status", string(status)).
		Float64("success_rate", result.SuccessRate).Msg("experiment evaluation stored")
	return exp, nil
}

func (e *Evaluator) evaluate(ctx context.Context, exp *contractx.Experiment, implemented []contractx.PriceChange) (*contractx.EvaluationResult, error) {
	length := exp.EvaluationDate.Sub(exp.StartDate)

	before, err := e.salesIndex(ctx, exp.OwnerID, exp.StartDate.Add(-length), exp.StartDate)
	if err != nil {
		return nil, fmt.Errorf("aggregate before window: %w", err)
	}
	after, err := e.salesIndex(ctx, exp.OwnerID, exp.StartDate, exp.EvaluationDate)
	if err != nil {
		return nil, fmt.Errorf("aggregate after window: %w", err)
	}

	items := make([]contractx.ItemEvaluation, 0, len(implemented))
	successes := 0
	for _, ch := range implemented {
		b := before[ch.ItemID]
		a := after[ch.ItemID]

		priceChangePct := 0.0
		if ch.OriginalPrice > 0 {
			priceChangePct = percentChange(ch.NewPrice, ch.OriginalPrice)
		}
		quantityChangePct := 0.0
		if b.Quantity != 0 {
			quantityChangePct = percentChange(a.Quantity, b.Quantity)
		}
		revenueChangePct := 0.0
		if b.Revenue != 0 {
			revenueChangePct = percentChange(a.Revenue, b.Revenue)
		}

		// Elasticity is undefined with no price movement; reported as 0.
		elasticity := 0.0
		if priceChangePct != 0 {
			elasticity = decimal.NewFromFloat(quantityChangePct).
				Div(decimal.NewFromFloat(priceChangePct)).InexactFloat64()
		}

		success := a.Revenue-b.Revenue > 0
		if success {
			successes++
		}

		items = append(items, contractx.ItemEvaluation{
			ItemID:            ch.ItemID,
			OriginalPrice:     ch.OriginalPrice,
			NewPrice:          ch.NewPrice,
			PriceChangePct:    priceChangePct,
			QuantityBefore:    b.Quantity,
			QuantityAfter:     a.Quantity,
			QuantityChangePct: quantityChangePct,
			RevenueBefore:     b.Revenue,
			RevenueAfter:      a.Revenue,
			RevenueChangePct:  revenueChangePct,
			Elasticity:        elasticity,
			Success:           success,
		})
	}

	successRate := 0.0
	if len(items) > 0 {
		successRate = float64(successes) / float64(len(items))
	}

	return &contractx.EvaluationResult{
		Status:         string(contractx.ExperimentEvaluated),
		SuccessRate:    successRate,
		ItemsEvaluated: len(items),
		Items:          items,
		EvaluatedAt:    e.now().UTC(),
	}, nil
}

func (e *Evaluator) salesIndex(ctx context.Context, ownerID int64, from, to time.Time) (map[int64]contractx.SalesAggregate, error) {
	rows, err := e.data.SalesByItem(ctx, ownerID, from, to)
	if err != nil {
		return nil, err
	}
	index := make(map[int64]contractx.SalesAggregate, len(rows))
	for _, row := range rows {
		index[row.ItemID] = row
	}
	return index, nil
}

func percentChange(after, before float64) float64 {
	return decimal.NewFromFloat(after).Sub(decimal.NewFromFloat(before)).
		Div(decimal.NewFromFloat(before)).
		Mul(decimal.NewFromInt(100)).InexactFloat64()
}
