// Package agenttest provides in-memory fakes of the contract
// interfaces for use in agent tests.
package agenttest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	contractx "github.com/sirawit-t/agentic-pricing-pipeline/agent/contract"
)

// Completer replays queued responses in order; Err short-circuits.
type Completer struct {
	mu        sync.Mutex
	Responses []string
	Err       error
	Prompts   []string
	idx       int
}

func (f *Completer) Complete(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Prompts = append(f.Prompts, prompt)
	if f.Err != nil {
		return "", f.Err
	}
	if f.idx >= len(f.Responses) {
		return "", errors.New("no fake response left")
	}
	resp := f.Responses[f.idx]
	f.idx++
	return resp, nil
}

// Data serves canned business projections.
type Data struct {
	ItemRows       []contractx.Item
	CompetitorRows []contractx.CompetitorPrice
	Activity       *contractx.CustomerActivity
	Sales          []contractx.SalesAggregate

	// For window-sensitive tests: windows ending at or before SalesSplit
	// see SalesBefore, later windows see SalesAfter.
	SalesBefore []contractx.SalesAggregate
	SalesAfter  []contractx.SalesAggregate
	SalesSplit  time.Time

	Err error
}

func (f *Data) Items(context.Context, int64) ([]contractx.Item, error) {
	return f.ItemRows, f.Err
}

func (f *Data) CompetitorPrices(context.Context, int64) ([]contractx.CompetitorPrice, error) {
	return f.CompetitorRows, f.Err
}

func (f *Data) SalesByItem(_ context.Context, _ int64, from, to time.Time) ([]contractx.SalesAggregate, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if f.SalesSplit.IsZero() {
		return f.Sales, nil
	}
	if !to.After(f.SalesSplit) {
		return f.SalesBefore, nil
	}
	return f.SalesAfter, nil
}

func (f *Data) CustomerActivity(context.Context, int64, time.Time, time.Time) (*contractx.CustomerActivity, error) {
	return f.Activity, f.Err
}

// Store is an insert-only in-memory ReportStore with the same status
// transition guard as the real one.
type Store struct {
	mu          sync.Mutex
	Reports     []*contractx.Report
	Experiments map[uuid.UUID]*contractx.Experiment
	Changes     map[uuid.UUID][]contractx.PriceChange
	InsertErr   error
	UpdateErr   error
}

func NewStore() *Store {
	return &Store{
		Experiments: make(map[uuid.UUID]*contractx.Experiment),
		Changes:     make(map[uuid.UUID][]contractx.PriceChange),
	}
}

func (f *Store) InsertReport(_ context.Context, r *contractx.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InsertErr != nil {
		return f.InsertErr
	}
	cp := *r
	f.Reports = append(f.Reports, &cp)
	return nil
}

func (f *Store) LatestReport(_ context.Context, ownerID int64, kind contractx.ReportKind) (*contractx.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *contractx.Report
	for _, r := range f.Reports {
		if r.OwnerID != ownerID || r.Kind != kind {
			continue
		}
		if latest == nil || r.CreatedAt.After(latest.CreatedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, contractx.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (f *Store) ReportByID(_ context.Context, id uuid.UUID) (*contractx.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.Reports {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, contractx.ErrNotFound
}

func (f *Store) InsertExperiment(_ context.Context, exp *contractx.Experiment, changes []contractx.PriceChange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InsertErr != nil {
		return f.InsertErr
	}
	cp := *exp
	f.Experiments[exp.ID] = &cp
	f.Changes[exp.ID] = append([]contractx.PriceChange(nil), changes...)
	return nil
}

func (f *Store) ExperimentByID(_ context.Context, id uuid.UUID) (*contractx.Experiment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	exp, ok := f.Experiments[id]
	if !ok {
		return nil, contractx.ErrNotFound
	}
	cp := *exp
	return &cp, nil
}

func (f *Store) PriceChanges(_ context.Context, experimentID uuid.UUID) ([]contractx.PriceChange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]contractx.PriceChange(nil), f.Changes[experimentID]...), nil
}

func (f *Store) SetExperimentOutcome(_ context.Context, id uuid.UUID, status contractx.ExperimentStatus, evaluation json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UpdateErr != nil {
		return f.UpdateErr
	}
	exp, ok := f.Experiments[id]
	if !ok {
		return contractx.ErrNotFound
	}
	if !exp.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", contractx.ErrInvalidTransition, exp.Status, status)
	}
	exp.Status = status
	exp.Evaluation = append(json.RawMessage(nil), evaluation...)
	return nil
}

func (f *Store) SetExperimentEvaluation(_ context.Context, id uuid.UUID, evaluation json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UpdateErr != nil {
		return f.UpdateErr
	}
	exp, ok := f.Experiments[id]
	if !ok {
		return contractx.ErrNotFound
	}
	exp.Evaluation = append(json.RawMessage(nil), evaluation...)
	return nil
}
