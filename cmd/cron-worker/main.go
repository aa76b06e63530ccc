package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/satoshishop/backend/internal/cron"
	"github.com/satoshishop/backend/internal/orders"
	"github.com/satoshishop/backend/pkg/config"
	"github.com/satoshishop/backend/pkg/db"
	"github.com/satoshishop/backend/pkg/logger"
	"github.com/satoshishop/backend/pkg/metrics"
	"github.com/satoshishop/backend/pkg/migrate"
	"github.com/satoshishop/backend/pkg/redis"
	"github.com/satoshishop/backend/pkg/tracking"
)

const lockName = "cron-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	var trackingClient *tracking.Client
	if cfg.Tracking.BaseURL != "" {
		trackingClient, err = tracking.NewClient(context.Background(), cfg.Tracking, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create tracking client", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "tracking base url not set, delivery polling disabled")
	}

	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	ordersRepo := orders.NewRepository(dbClient.DB())

	var service cron.Service
	if trackingClient != nil {
		service, err = cron.NewService(ordersRepo, trackingClient, cfg.Cron, cronMetrics, logg)
	} else {
		service, err = cron.NewService(ordersRepo, nil, cfg.Cron, cronMetrics, logg)
	}
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	// The lock covers one full sweep cycle so that overlapping workers
	// (deploys, dyno restarts) never run the sweeps concurrently.
	lock := cron.NewLock(redisClient, lockName, cfg.Cron.Interval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"interval": cfg.Cron.Interval.String(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := run(ctx, service, lock, cfg.Cron.Interval, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func run(ctx context.Context, service cron.Service, lock *cron.Lock, interval time.Duration, logg *logger.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sweep(ctx, service, lock, logg)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sweep(ctx, service, lock, logg)
		}
	}
}

func sweep(ctx context.Context, service cron.Service, lock *cron.Lock, logg *logger.Logger) {
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		logg.Error(ctx, "failed to acquire cron lock", err)
		return
	}
	if !acquired {
		logg.Info(ctx, "cron lock held elsewhere, skipping sweep")
		return
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			logg.Error(ctx, "failed to release cron lock", err)
		}
	}()

	if result, err := service.ExpirePending(ctx); err != nil {
		logg.Error(ctx, "pending expiration sweep failed", err)
	} else {
		fields := logg.WithFields(ctx, map[string]any{
			"scanned": result.Scanned,
			"updated": result.Updated,
		})
		logg.Info(fields, "pending expiration sweep complete")
	}

	if result, err := service.PollDeliveries(ctx); err != nil {
		logg.Error(ctx, "delivery polling sweep failed", err)
	} else {
		fields := logg.WithFields(ctx, map[string]any{
			"scanned": result.Scanned,
			"updated": result.Updated,
		})
		logg.Info(fields, "delivery polling sweep complete")
	}
}
