package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/homeserve-payments/internal/cron"
	"github.com/angelmondragon/homeserve-payments/internal/ledger"
	"github.com/angelmondragon/homeserve-payments/internal/notifications"
	"github.com/angelmondragon/homeserve-payments/internal/orders"
	"github.com/angelmondragon/homeserve-payments/internal/payments"
	"github.com/angelmondragon/homeserve-payments/internal/reconcile"
	"github.com/angelmondragon/homeserve-payments/pkg/config"
	"github.com/angelmondragon/homeserve-payments/pkg/db"
	"github.com/angelmondragon/homeserve-payments/pkg/logger"
	"github.com/angelmondragon/homeserve-payments/pkg/metrics"
	"github.com/angelmondragon/homeserve-payments/pkg/migrate"
	"github.com/angelmondragon/homeserve-payments/pkg/outbox"
	"github.com/angelmondragon/homeserve-payments/pkg/redis"
)

const (
	serviceKind  = "cron-worker"
	cleanupEvery = 24 * time.Hour
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		os.Exit(1)
	}
}

func run() error {
	bootLog := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		bootLog.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		bootLog.Error(context.Background(), "failed to load config", err)
		return err
	}
	cfg.Service.Kind = serviceKind
	logg := logger.FromConfig(serviceKind, cfg.App)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "service_kind": serviceKind})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		return err
	}
	defer dbClient.Close()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		return err
	}
	defer redisClient.Close()

	registry, err := buildRegistry(cfg, logg, dbClient)
	if err != nil {
		logg.Error(ctx, "failed to build job registry", err)
		return err
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(serviceKind, lockScope(cfg.App.Env)), cfg.Reconcile.Interval)
	if err != nil {
		logg.Error(ctx, "failed to create cron lock", err)
		return err
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Reconcile.Interval,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		return err
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		return err
	}
	logg.Info(ctx, "cron worker shutting down")
	return nil
}

// buildRegistry runs reconciliation every tick and the cleanup jobs daily.
func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	gdb := dbClient.DB()

	ledgerService, err := ledger.NewService(ledger.NewRepository(gdb))
	if err != nil {
		return nil, err
	}
	reconcileJob, err := reconcile.NewJob(reconcile.JobParams{
		Logger:       logg,
		Orders:       orders.NewRepository(gdb),
		Transactions: payments.NewRepository(gdb),
		Ledger:       ledgerService,
		Metrics:      metrics.NewSettlementMetrics(prometheus.DefaultRegisterer),
		Lookback:     cfg.Reconcile.Lookback,
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile job: %w", err)
	}
	registry := cron.NewRegistry(reconcileJob)

	params := cron.RetentionParams{Logger: logg, DB: dbClient}
	cleanups := []struct {
		build func(cron.RetentionParams, cron.Pruner) (cron.Job, error)
		prune cron.Pruner
	}{
		{cron.NewNotificationCleanupJob, notifications.NewRepository(gdb).DeleteReadBefore},
		{cron.NewOutboxRetentionJob, outbox.NewRepository(gdb).DeletePublishedBefore},
		{cron.NewDeadLetterRetentionJob, outbox.NewDLQRepository(gdb).DeleteFailedBefore},
	}
	for _, c := range cleanups {
		job, err := c.build(params, c.prune)
		if err != nil {
			return nil, err
		}
		registry.RegisterEvery(job, cleanupEvery)
	}
	return registry, nil
}

func lockScope(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
