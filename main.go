package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sirawit-t/agentic-pricing-pipeline/agent/pipeline"
	storex "github.com/sirawit-t/agentic-pricing-pipeline/agent/store"
	configx "github.com/sirawit-t/agentic-pricing-pipeline/pkg/config"
	_ "github.com/sirawit-t/agentic-pricing-pipeline/pkg/logger/autoload"
	openrouterx "github.com/sirawit-t/agentic-pricing-pipeline/pkg/openrouter"
)

type AppConfig struct {
	OwnerID      int64  `envconfig:"OWNER_ID" required:"true"`
	ExperimentID string `envconfig:"EXPERIMENT_ID"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCfg := configx.MustNew[AppConfig]("")

	openRouterCfg := configx.MustNew[openrouterx.Config]("OPENROUTER")
	llm := openrouterx.MustNew(*openRouterCfg)

	dbCfg := configx.MustNew[storex.Config]("DB")
	db, err := storex.Connect(ctx, *dbCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	defer db.Close()

	svc := pipeline.New(llm, db, db)

	// With EXPERIMENT_ID set, evaluate that experiment and exit.
	// Otherwise run the full analysis, synthesis, and planning cycle.
	if appCfg.ExperimentID != "" {
		expID, err := uuid.Parse(appCfg.ExperimentID)
		if err != nil {
			log.Fatal().Err(err).Str("experiment_id", appCfg.ExperimentID).Msg("parse experiment id")
		}
		exp, err := svc.EvaluateExperiment(ctx, expID)
		if err != nil {
			log.Fatal().Err(err).Stringer("experiment_id", expID).Msg("evaluate experiment")
		}
		log.Info().
			Stringer("experiment_id", exp.ID).
			Str("status", string(exp.Status)).
			Msg("experiment evaluated")
		return
	}

	pricing, err := svc.RunFull(ctx, appCfg.OwnerID)
	if err != nil {
		log.Fatal().Err(err).Int64("owner_id", appCfg.OwnerID).Msg("run pipeline")
	}
	log.Info().
		Stringer("report_id", pricing.ID).
		Bool("degraded", pricing.Degraded()).
		Msg("pricing report generated")

	exp, err := svc.PlanExperiment(ctx, appCfg.OwnerID, pricing.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("plan experiment")
	}
	log.Info().
		Stringer("experiment_id", exp.ID).
		Time("start_date", exp.StartDate).
		Time("evaluation_date", exp.EvaluationDate).
		Msg("experiment planned")
}
