// Package pipeline wires the agents together: a concurrent fan-out of
// the three analysis agents, a synthesis join, and the discrete
// experiment operations.
package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	analysisx "github.com/sirawit-t/agentic-pricing-pipeline/agent/analysis"
	contractx "github.com/sirawit-t/agentic-pricing-pipeline/agent/contract"
	experimentx "github.com/sirawit-t/agentic-pricing-pipeline/agent/experiment"
	synthesisx "github.com/sirawit-t/agentic-pricing-pipeline/agent/synthesis"
)

// analysisAgents is the number of independent analysis stages; it also
// bounds the fan-out pool.
const analysisAgents = 3

type Service struct {
	competitor *analysisx.Agent
	customer   *analysisx.Agent
	market     *analysisx.Agent
	pricing    *synthesisx.Agent
	planner    *experimentx.Planner
	evaluator  *experimentx.Evaluator
}

func New(llm contractx.Completer, data contractx.BusinessData, store contractx.ReportStore) *Service {
	return &Service{
		competitor: analysisx.NewCompetitor(llm, data, store),
		customer:   analysisx.NewCustomer(llm, data, store),
		market:     analysisx.NewMarket(llm, data, store),
		pricing:    synthesisx.New(llm, data, store),
		planner:    experimentx.NewPlanner(llm, store),
		evaluator:  experimentx.NewEvaluator(data, store),
	}
}

// AnalysisResult carries the three reports of one fan-out run. Any slot
// may hold a degraded report; a nil slot means that agent's insert
// failed.
type AnalysisResult struct {
	Competitor *contractx.Report
	Customer   *contractx.Report
	Market     *contractx.Report
}

// RunAnalysis launches the three analysis agents concurrently and waits
// for all of them. A plain errgroup (no shared cancellation) keeps one
// agent's persistence failure from aborting its siblings: every agent
// runs to completion, degrade-and-continue.
func (s *Service) RunAnalysis(ctx context.Context, ownerID int64) (AnalysisResult, error) {
	var result AnalysisResult

	var g errgroup.Group
	g.SetLimit(analysisAgents)
	g.Go(func() error {
		report, err := s.competitor.Run(ctx, ownerID)
		result.Competitor = report
		return err
	})
	g.Go(func() error {
		report, err := s.customer.Run(ctx, ownerID)
		result.Customer = report
		return err
	})
	g.Go(func() error {
		report, err := s.market.Run(ctx, ownerID)
		result.Market = report
		return err
	})

	if err := g.Wait(); err != nil {
		return result, fmt.Errorf("analysis fan-out: %w", err)
	}

	log.Info().Int64("owner_id", ownerID).Msg("analysis fan-out complete")
	return result, nil
}

// RunSynthesis produces the pricing report from whatever analysis
// reports currently exist for the owner.
func (s *Service) RunSynthesis(ctx context.Context, ownerID int64) (*contractx.Report, error) {
	return s.pricing.Run(ctx, ownerID)
}

// RunFull is the fan-out/fan-in path: analysis, then synthesis. A
// fan-out persistence error is surfaced rather than synthesized over;
// the sibling agents' committed reports remain valid either way.
func (s *Service) RunFull(ctx context.Context, ownerID int64) (*contractx.Report, error) {
	if _, err := s.RunAnalysis(ctx, ownerID); err != nil {
		return nil, err
	}
	return s.RunSynthesis(ctx, ownerID)
}

// PlanExperiment materializes a pending experiment from the owner's
// most recent pricing report, or from a specific one.
func (s *Service) PlanExperiment(ctx context.Context, ownerID int64, pricingReportID uuid.UUID) (*contractx.Experiment, error) {
	return s.planner.Run(ctx, ownerID, pricingReportID)
}

// EvaluateExperiment runs the evaluation state machine for one
// experiment. It is triggered independently, typically long after
// external logic has flagged the price changes implemented.
func (s *Service) EvaluateExperiment(ctx context.Context, experimentID uuid.UUID) (*contractx.Experiment, error) {
	return s.evaluator.Run(ctx, experimentID)
}
