package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/vantage-kit/vantage/internal/app"
	"github.com/vantage-kit/vantage/internal/identity"
	jobmetrics "github.com/vantage-kit/vantage/internal/jobs"
	"github.com/vantage-kit/vantage/internal/platform/cache"
	"github.com/vantage-kit/vantage/internal/platform/db"
	"github.com/vantage-kit/vantage/internal/rbac"
	"github.com/vantage-kit/vantage/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	metrics := jobmetrics.NewMetrics(nil)

	identityRepo := identity.NewRepository(pool)
	identityService := identity.NewService(identityRepo, cfg.TokenTTL)
	abilityCache := rbac.NewCache(redisClient, cfg.AbilityCacheTTL)

	pruneJob := jobs.NewTokenPruneJob(identityService, logger, metrics)
	bumpJob := jobs.NewAbilitiesBumpJob(abilityCache, logger, metrics)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: redisOpts,
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTokensPrune, Handler: pruneJob.Handle},
			{Type: jobs.TaskAbilitiesBump, Handler: bumpJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "45 * * * *", Task: jobs.NewTokensPruneTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 4 * * *", Task: jobs.NewAbilitiesBumpTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
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
