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

	"github.com/pharmaos/pharmaos/internal/analytics"
	"github.com/pharmaos/pharmaos/internal/app"
	"github.com/pharmaos/pharmaos/internal/coldchain"
	"github.com/pharmaos/pharmaos/internal/ledger"
	"github.com/pharmaos/pharmaos/internal/masterdata"
	"github.com/pharmaos/pharmaos/internal/observability"
	"github.com/pharmaos/pharmaos/internal/platform/cache"
	"github.com/pharmaos/pharmaos/internal/platform/db"
	"github.com/pharmaos/pharmaos/internal/sales"
	"github.com/pharmaos/pharmaos/internal/shared"
	"github.com/pharmaos/pharmaos/internal/trace"
	"github.com/pharmaos/pharmaos/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	metrics := observability.NewMetrics()

	masterdataRepo := masterdata.NewRepository(dbpool)
	masterdataService := masterdata.NewService(masterdataRepo)
	masterdataHandler := masterdata.NewHandler(logger, masterdataService)

	ledgerRepo := ledger.NewRepository(dbpool)
	ledgerService := ledger.NewService(ledgerRepo, masterdataRepo, masterdataRepo, auditLogger, idempotencyStore)
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	salesRepo := sales.NewRepository(dbpool)
	salesService := sales.NewService(logger, salesRepo, ledgerService, auditLogger)
	salesService.SetMetrics(metrics)
	salesHandler := sales.NewHandler(logger, salesService)

	coldchainService := coldchain.NewService(logger, masterdataRepo, masterdataRepo, ledgerService, cfg.DefaultMaxTemp)
	coldchainService.SetMetrics(metrics)
	coldchainHandler := coldchain.NewHandler(logger, coldchainService)

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	traceRepo := trace.NewRepository(dbpool)
	traceService := trace.NewService(logger, traceRepo, ledgerService, masterdataRepo, jobClient, cfg.RecallFallbackRecipient)
	traceService.SetMetrics(metrics)
	traceHandler := trace.NewHandler(logger, traceService)

	analyticsRepo := analytics.NewRepository(dbpool)
	analyticsCache := analytics.NewCache(redisClient, 10*time.Minute)
	analyticsService := analytics.NewService(analyticsRepo, analyticsCache)
	if err := analyticsCache.ListenForInvalidation(ctx, ""); err != nil {
		logger.Warn("cache invalidation listener", slog.Any("error", err))
	}
	ledgerService.SetNotifier(analyticsService)
	analyticsHandler := analytics.NewHandler(logger, analyticsService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		MasterDataHandler: masterdataHandler,
		LedgerHandler:     ledgerHandler,
		SalesHandler:      salesHandler,
		ColdChainHandler:  coldchainHandler,
		TraceHandler:      traceHandler,
		AnalyticsHandler:  analyticsHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
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
