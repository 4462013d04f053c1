package experiment

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	agenttestx "github.com/sirawit-t/agentic-pricing-pipeline/agent/agenttest"
	contractx "github.com/sirawit-t/agentic-pricing-pipeline/agent/contract"
)

var (
	expStart = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	expEval  = time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
)

func seedExperiment(store *agenttestx.Store, changes []contractx.PriceChange) *contractx.Experiment {
	exp := &contractx.Experiment{
		ID:              uuid.New(),
		OwnerID:         ownerID,
		PricingReportID: uuid.New(),
		Summary:         "latte price test",
		StartDate:       expStart,
		EvaluationDate:  expEval,
		Status:          contractx.ExperimentPending,
		CreatedAt:       expStart.Add(-24 * time.Hour),
	}
	for i := range changes {
		changes[i].ExperimentID = exp.ID
	}
	_ = store.InsertExperiment(context.Background(), exp, changes)
	return exp
}

func decodeResult(t *testing.T, payload json.RawMessage) contractx.EvaluationResult {
	t.Helper()
	var result contractx.EvaluationResult
	if err := json.Unmarshal(payload, &result); err != nil {
		t.Fatalf("decode evaluation payload: %v", err)
	}
	return result
}

func TestEvaluatorRunNothingImplemented(t *testing.T) {
	t.Parallel()

	store := agenttestx.NewStore()
	exp := seedExperiment(store, []contractx.PriceChange{
		{ID: uuid.New(), ItemID: 1, OriginalPrice: 4.50, NewPrice: 4.95, Implemented: false},
	})

	out, err := NewEvaluator(&agenttestx.Data{}, store).Run(context.Background(), exp.ID)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if out.Status != contractx.ExperimentCancelled {
		t.Fatalf("expected cancelled, got %s", out.Status)
	}
	result := decodeResult(t, out.Evaluation)
	if result.Reason != "No price changes were implemented" {
		t.Fatalf("unexpected reason: %q", result.Reason)
	}
}

func TestEvaluatorRunElasticity(t *testing.T) {
	t.Parallel()

	store := agenttestx.NewStore()
	exp := seedExperiment(store, []contractx.PriceChange{
		{ID: uuid.New(), ItemID: 7, OriginalPrice: 10.00, NewPrice: 12.00, Implemented: true},
	})
	data := &agenttestx.Data{
		SalesSplit:  expStart,
		SalesBefore: []contractx.SalesAggregate{{ItemID: 7, Quantity: 100, Revenue: 1000.00}},
		SalesAfter:  []contractx.SalesAggregate{{ItemID: 7, Quantity: 80, Revenue: 960.00}},
	}

	out, err := NewEvaluator(data, store).Run(context.Background(), exp.ID)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.Status != contractx.ExperimentEvaluated {
		t.Fatalf("expected evaluated, got %s", out.Status)
	}

	result := decodeResult(t, out.Evaluation)
	if result.ItemsEvaluated != 1 || len(result.Items) != 1 {
		t.Fatalf("expected one evaluated item, got %+v", result)
	}
	item := result.Items[0]
	if item.PriceChangePct != 20.0 {
		t.Fatalf("expected price change of 20%%, got %v", item.PriceChangePct)
	}
	if item.QuantityChangePct != -20.0 {
		t.Fatalf("expected quantity change of -20%%, got %v", item.QuantityChangePct)
	}
	if item.Elasticity != -1.0 {
		t.Fatalf("expected elasticity -1.0, got %v", item.Elasticity)
	}
	if item.RevenueChangePct != -4.0 {
		t.Fatalf("expected revenue change of -4%%, got %v", item.RevenueChangePct)
	}
	if item.Success {
		t.Fatal("revenue fell, item must not be marked successful")
	}
	if result.SuccessRate != 0 {
		t.Fatalf("expected success rate 0, got %v", result.SuccessRate)
	}
}

func TestEvaluatorRunZeroPriceChange(t *testing.T) {
	t.Parallel()

	store := agenttestx.NewStore()
	exp := seedExperiment(store, []contractx.PriceChange{
		{ID: uuid.New(), ItemID: 7, OriginalPrice: 10.00, NewPrice: 10.00, Implemented: true},
	})
	data := &agenttestx.Data{
		SalesSplit:  expStart,
		SalesBefore: []contractx.SalesAggregate{{ItemID: 7, Quantity: 50, Revenue: 500}},
		SalesAfter:  []contractx.SalesAggregate{{ItemID: 7, Quantity: 90, Revenue: 900}},
	}

	out, err := NewEvaluator(data, store).Run(context.Background(), exp.ID)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	result := decodeResult(t, out.Evaluation)
	item := result.Items[0]
	if item.PriceChangePct != 0 {
		t.Fatalf("expected no price change, got %v", item.PriceChangePct)
	}
	if item.Elasticity != 0 {
		t.Fatalf("elasticity must be 0 when the price did not move, got %v", item.Elasticity)
	}
	if !item.Success {
		t.Fatal("revenue rose, item must be successful")
	}
	if result.SuccessRate != 1.0 {
		t.Fatalf("expected success rate 1.0, got %v", result.SuccessRate)
	}
}

func TestEvaluatorRunNoBeforeSales(t *testing.T) {
	t.Parallel()

	store := agenttestx.NewStore()
	exp := seedExperiment(store, []contractx.PriceChange{
		{ID: uuid.New(), ItemID: 7, OriginalPrice: 4.00, NewPrice: 4.40, Implemented: true},
	})
	data := &agenttestx.Data{
		SalesSplit: expStart,
		SalesAfter: []contractx.SalesAggregate{{ItemID: 7, Quantity: 30, Revenue: 132}},
	}

	out, err := NewEvaluator(data, store).Run(context.Background(), exp.ID)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	item := decodeResult(t, out.Evaluation).Items[0]
	if item.QuantityChangePct != 0 {
		t.Fatalf("zero before-quantity must yield 0%% change, got %v", item.QuantityChangePct)
	}
	if !item.Success {
		t.Fatal("any positive revenue against an empty before window is a success")
	}
}

func TestEvaluatorRunAggregationErrorIsNonTerminal(t *testing.T) {
	t.Parallel()

	store := agenttestx.NewStore()
	exp := seedExperiment(store, []contractx.PriceChange{
		{ID: uuid.New(), ItemID: 7, OriginalPrice: 10, NewPrice: 12, Implemented: true},
	})
	data := &agenttestx.Data{Err: errors.New("orders table unavailable")}

	out, err := NewEvaluator(data, store).Run(context.Background(), exp.ID)
	if err != nil {
		t.Fatalf("aggregation failure must be recorded, not raised: %v", err)
	}

	result := decodeResult(t, out.Evaluation)
	if result.Status != "error" || result.Error == "" {
		t.Fatalf("expected error payload, got %+v", result)
	}

	stored, _ := store.ExperimentByID(context.Background(), exp.ID)
	if stored.Status != contractx.ExperimentPending {
		t.Fatalf("status must stay unchanged for retry, got %s", stored.Status)
	}

	// After the data source recovers, the retry completes normally.
	data.Err = nil
	data.SalesSplit = expStart
	data.SalesBefore = []contractx.SalesAggregate{{ItemID: 7, Quantity: 10, Revenue: 100}}
	data.SalesAfter = []contractx.SalesAggregate{{ItemID: 7, Quantity: 11, Revenue: 132}}

	retried, err := NewEvaluator(data, store).Run(context.Background(), exp.ID)
	if err != nil {
		t.Fatalf("retry error = %v", err)
	}
	if retried.Status != contractx.ExperimentEvaluated {
		t.Fatalf("retry must evaluate, got %s", retried.Status)
	}
}

func TestEvaluatorRunEvaluatedIsTerminal(t *testing.T) {
	t.Parallel()

	store := agenttestx.NewStore()
	exp := seedExperiment(store, []contractx.PriceChange{
		{ID: uuid.New(), ItemID: 7, OriginalPrice: 10, NewPrice: 12, Implemented: true},
	})
	data := &agenttestx.Data{
		SalesSplit:  expStart,
		SalesBefore: []contractx.SalesAggregate{{ItemID: 7, Quantity: 10, Revenue: 100}},
		SalesAfter:  []contractx.SalesAggregate{{ItemID: 7, Quantity: 12, Revenue: 144}},
	}
	evaluator := NewEvaluator(data, store)

	if _, err := evaluator.Run(context.Background(), exp.ID); err != nil {
		t.Fatalf("first evaluation error = %v", err)
	}
	_, err := evaluator.Run(context.Background(), exp.ID)
	if !errors.Is(err, contractx.ErrInvalidTransition) {
		t.Fatalf("re-evaluating a terminal experiment must fail the transition guard, got %v", err)
	}
}
