package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/groupledger/groupledger/internal/app"
	"github.com/groupledger/groupledger/internal/consolidation"
	"github.com/groupledger/groupledger/internal/elimination"
	"github.com/groupledger/groupledger/internal/fxrate"
	"github.com/groupledger/groupledger/internal/goodwill"
	"github.com/groupledger/groupledger/internal/pack"
	"github.com/groupledger/groupledger/internal/perimeter"
	"github.com/groupledger/groupledger/internal/platform/cache"
	"github.com/groupledger/groupledger/internal/platform/db"
	"github.com/groupledger/groupledger/internal/reconciliation"
	ireport "github.com/groupledger/groupledger/internal/report"
	"github.com/groupledger/groupledger/internal/restatement"
	"github.com/groupledger/groupledger/jobs"
	"github.com/groupledger/groupledger/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.NewPool(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	fxService := fxrate.NewService(fxrate.NewRepository(pool), redisClient, logger, cfg.RateLookupTimeout)
	translator := pack.NewTranslator(fxService)
	perimeterService := perimeter.NewService(perimeter.NewRepository(pool))
	packService := pack.NewService(pack.NewRepository(pool))
	eliminationService := elimination.NewService(elimination.NewRepository(pool), logger)
	restatementService := restatement.NewService(restatement.NewRepository(pool), logger)
	reconciliationService := reconciliation.NewService(reconciliation.NewRepository(pool),
		reconciliation.NewMatcher(nil), logger)
	goodwillService := goodwill.NewService(goodwill.NewRepository(pool), logger)

	consolidationStore := consolidation.NewRepository(pool)
	consolidationService := consolidation.NewService(consolidationStore, perimeterService,
		packService, reconciliationService, logger)
	orchestrator := consolidation.NewOrchestrator(consolidationStore, perimeterService,
		packService, translator, restatementService, eliminationService,
		reconciliationService, goodwillService, logger)

	artifactDir := os.TempDir() + "/groupledger-artifacts"
	gotenberg := report.NewClient(cfg.GotenbergURL, cfg.RenderTimeout)
	renderer := report.NewRenderer(gotenberg, artifactDir, cfg.ArtifactBaseURL, logger)
	reportService := ireport.NewService(ireport.NewRepository(pool), consolidationService,
		reconciliationService, renderer, logger)

	recalcJob := jobs.NewRecalculateJob(orchestrator, redisClient, logger, cfg.RecalcTimeout)
	renderJob := jobs.NewReportRenderJob(reportService, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Recalculate: recalcJob,
		Render:      renderJob,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
