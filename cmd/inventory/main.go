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

	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/app"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/audit"
	audithttp "github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/audit/http"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/auth"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/inventory"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/observability"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/organizations"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/platform/cache"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/platform/db"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/rbac"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/sections"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/shared"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/internal/users"
	"github.com/swapisticated/Virtual-Ai-Inventory-sub000/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
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

	metrics := observability.NewMetrics()
	rbacMiddleware := rbac.Middleware{Logger: logger}
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	orgService := organizations.NewService(
		organizations.NewRepository(dbpool),
		logger,
		organizations.ServiceConfig{LowStockThreshold: cfg.LowStockThreshold},
	)
	userService := users.NewService(users.NewRepository(dbpool), orgService, logger)

	authService := auth.NewService(
		auth.NewRepository(dbpool),
		userService,
		auth.NewSessionCache(redisClient),
		auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL),
		jobClient,
		logger,
		auth.Config{SessionTTL: cfg.SessionTTL, VerificationTTL: cfg.VerificationTTL},
	)
	cookies := auth.CookieWriter{Name: cfg.SessionCookie, Secure: cfg.IsProduction()}
	authMiddleware := auth.Middleware{Service: authService, Cookies: cookies, Logger: logger}
	authHandler := auth.NewHandler(logger, authService, rbacMiddleware, auth.HandlerOptions{
		Cookies:       cookies,
		GatewaySecret: cfg.GatewaySecret,
		LoginLimit:    cfg.LoginRateLimit,
	})

	sectionCache := cache.NewVersioned(redisClient, "sections", cfg.SectionCacheTTL)
	sectionService := sections.NewService(sections.NewRepository(dbpool), sectionCache, logger)

	inventoryService := inventory.NewService(
		inventory.NewRepository(dbpool),
		idempotencyStore,
		sectionService,
		metrics,
		logger,
		inventory.ServiceConfig{AllowNegativeStock: cfg.AllowNegative},
	)

	auditService := audit.NewService(audit.NewRepository(dbpool))
	auditHandler := audithttp.NewHandler(logger, auditService, rbacMiddleware)

	inventoryHandler := inventory.NewHandler(logger, inventoryService, rbacMiddleware, inventory.HandlerOptions{
		LowStockThreshold: cfg.LowStockThreshold,
		ItemAudit:         auditHandler.ItemTimeline,
	})

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		Metrics:              metrics,
		Authenticate:         authMiddleware.Handler,
		RBACMiddleware:       rbacMiddleware,
		AuthHandler:          authHandler,
		OrganizationsHandler: organizations.NewHandler(logger, orgService, userService, rbacMiddleware),
		UsersHandler:         users.NewHandler(logger, userService, rbacMiddleware),
		SectionsHandler:      sections.NewHandler(logger, sectionService, rbacMiddleware),
		InventoryHandler:     inventoryHandler,
		AuditHandler:         auditHandler,
		JobHandler:           jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
