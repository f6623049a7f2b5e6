package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/app"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/auth"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/inventory"
	jobmetrics "github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/jobs"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/organizations"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/platform/db"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/users"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)

	orgService := organizations.NewService(
		organizations.NewRepository(pool),
		logger,
		organizations.ServiceConfig{LowStockThreshold: cfg.LowStockThreshold},
	)
	userService := users.NewService(users.NewRepository(pool), orgService, logger)
	authService := auth.NewService(
		auth.NewRepository(pool),
		userService,
		nil,
		nil,
		nil,
		logger,
		auth.Config{SessionTTL: cfg.SessionTTL, VerificationTTL: cfg.VerificationTTL},
	)
	inventoryService := inventory.NewService(
		inventory.NewRepository(pool),
		nil,
		nil,
		nil,
		logger,
		inventory.ServiceConfig{AllowNegativeStock: cfg.AllowNegative},
	)

	reconcileJob := jobs.NewInventoryReconcileJob(orgService, inventoryService, logger, metrics)
	purgeJob := jobs.NewAuthPurgeJob(authService, logger, metrics)
	mailJob := &jobs.VerificationMailJob{PublicURL: cfg.PublicURL, Logger: logger}
	cleanupJob := &jobs.IdempotencyCleanupJob{Store: shared.NewIdempotencyStore(pool), Logger: logger, Metrics: metrics}

	schedule, err := jobs.Schedule()
	if err != nil {
		logger.Error("build schedule", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskInventoryReconcile, Handler: reconcileJob.Handle},
			{Type: jobs.TaskAuthPurgeExpired, Handler: purgeJob.Handle},
			{Type: jobs.TaskVerificationMail, Handler: mailJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: schedule,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.WorkerMetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:              cfg.WorkerMetricsAddr,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("serving worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("worker metrics server", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
