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

	"github.com/vantage-kit/vantage/internal/app"
	"github.com/vantage-kit/vantage/internal/auth"
	"github.com/vantage-kit/vantage/internal/gate"
	"github.com/vantage-kit/vantage/internal/identity"
	"github.com/vantage-kit/vantage/internal/observability"
	"github.com/vantage-kit/vantage/internal/platform/cache"
	"github.com/vantage-kit/vantage/internal/platform/db"
	"github.com/vantage-kit/vantage/internal/rbac"
	"github.com/vantage-kit/vantage/internal/roles"
	"github.com/vantage-kit/vantage/internal/users"
	"github.com/vantage-kit/vantage/jobs"
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	identityRepo := identity.NewRepository(dbpool)
	identityService := identity.NewService(identityRepo, cfg.TokenTTL)

	rbacRepo := rbac.NewRepository(dbpool)
	abilityCache := rbac.NewCache(redisClient, cfg.AbilityCacheTTL)
	resolver := rbac.NewResolver(rbacRepo, abilityCache, logger)
	graph := rbac.NewService(rbacRepo, abilityCache)

	authGate := gate.Gate{
		Identity: identityService,
		Resolver: resolver,
		Logger:   logger,
		Metrics:  metrics,
	}

	authHandler := auth.NewHandler(logger, identityService, resolver, graph, authGate, metrics, cfg.LoginRateLimitPerMinute)
	usersService := users.NewService(identityService, graph, identityRepo)
	usersHandler := users.NewHandler(logger, usersService, authGate)
	rolesHandler := roles.NewHandler(logger, graph, authGate)
	permissionsHandler := rbac.NewPermissionsHandler(logger, graph, authGate.RequireAuth, authGate.RequireAbility)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Gate:               authGate,
		AuthHandler:        authHandler,
		UsersHandler:       usersHandler,
		RolesHandler:       rolesHandler,
		PermissionsHandler: permissionsHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
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
