package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/groupledger/groupledger/internal/app"
	"github.com/groupledger/groupledger/internal/consolidation"
	consolidationhttp "github.com/groupledger/groupledger/internal/consolidation/http"
	"github.com/groupledger/groupledger/internal/elimination"
	eliminationhttp "github.com/groupledger/groupledger/internal/elimination/http"
	"github.com/groupledger/groupledger/internal/fxrate"
	fxratehttp "github.com/groupledger/groupledger/internal/fxrate/http"
	"github.com/groupledger/groupledger/internal/goodwill"
	goodwillhttp "github.com/groupledger/groupledger/internal/goodwill/http"
	"github.com/groupledger/groupledger/internal/pack"
	packhttp "github.com/groupledger/groupledger/internal/pack/http"
	"github.com/groupledger/groupledger/internal/perimeter"
	perimeterhttp "github.com/groupledger/groupledger/internal/perimeter/http"
	"github.com/groupledger/groupledger/internal/platform/cache"
	"github.com/groupledger/groupledger/internal/platform/db"
	"github.com/groupledger/groupledger/internal/reconciliation"
	reconciliationhttp "github.com/groupledger/groupledger/internal/reconciliation/http"
	ireport "github.com/groupledger/groupledger/internal/report"
	reporthttp "github.com/groupledger/groupledger/internal/report/http"
	"github.com/groupledger/groupledger/internal/restatement"
	restatementhttp "github.com/groupledger/groupledger/internal/restatement/http"
	"github.com/groupledger/groupledger/jobs"
	"github.com/groupledger/groupledger/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.NewPool(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	fxService := fxrate.NewService(fxrate.NewRepository(dbpool), redisClient, logger, cfg.RateLookupTimeout)
	fxHandler := fxratehttp.NewHandler(logger, fxService)

	perimeterService := perimeter.NewService(perimeter.NewRepository(dbpool))
	perimeterHandler := perimeterhttp.NewHandler(logger, perimeterService)

	packService := pack.NewService(pack.NewRepository(dbpool))
	packHandler := packhttp.NewHandler(logger, packService)
	translator := pack.NewTranslator(fxService)

	eliminationService := elimination.NewService(elimination.NewRepository(dbpool), logger)
	eliminationHandler := eliminationhttp.NewHandler(logger, eliminationService)

	restatementService := restatement.NewService(restatement.NewRepository(dbpool), logger)
	restatementHandler := restatementhttp.NewHandler(logger, restatementService)

	reconciliationService := reconciliation.NewService(reconciliation.NewRepository(dbpool),
		reconciliation.NewMatcher(nil), logger)
	reconciliationHandler := reconciliationhttp.NewHandler(logger, reconciliationService)

	goodwillService := goodwill.NewService(goodwill.NewRepository(dbpool), logger)
	goodwillHandler := goodwillhttp.NewHandler(logger, goodwillService)

	consolidationStore := consolidation.NewRepository(dbpool)
	consolidationService := consolidation.NewService(consolidationStore, perimeterService,
		packService, reconciliationService, logger)
	orchestrator := consolidation.NewOrchestrator(consolidationStore, perimeterService,
		packService, translator, restatementService, eliminationService,
		reconciliationService, goodwillService, logger)

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("asynq client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()
	enqueueRecalc := func(consolidationID, expectedVersion int64) error {
		_, err := jobClient.EnqueueRecalculate(context.Background(), jobs.RecalculatePayload{
			ConsolidationID: consolidationID,
			ExpectedVersion: expectedVersion,
		})
		return err
	}
	consolidationHandler := consolidationhttp.NewHandler(logger, consolidationService, orchestrator, enqueueRecalc)

	artifactDir := os.TempDir() + "/groupledger-artifacts"
	gotenberg := report.NewClient(cfg.GotenbergURL, cfg.RenderTimeout)
	renderer := report.NewRenderer(gotenberg, artifactDir, cfg.ArtifactBaseURL, logger)
	reportService := ireport.NewService(ireport.NewRepository(dbpool), consolidationService,
		reconciliationService, renderer, logger)
	reportHandler := reporthttp.NewHandler(logger, reportService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:                logger,
		Config:                cfg,
		FXHandler:             fxHandler,
		PerimeterHandler:      perimeterHandler,
		PackageHandler:        packHandler,
		ConsolidationHandler:  consolidationHandler,
		EliminationHandler:    eliminationHandler,
		RestatementHandler:    restatementHandler,
		ReconciliationHandler: reconciliationHandler,
		GoodwillHandler:       goodwillHandler,
		ReportHandler:         reportHandler,
		JobHandler:            jobHandler,
		ArtifactDir:           artifactDir,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
