package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/angelmondragon/homeserve-payments/api/controllers"
	"github.com/angelmondragon/homeserve-payments/api/routes"
	"github.com/angelmondragon/homeserve-payments/internal/ledger"
	"github.com/angelmondragon/homeserve-payments/internal/notifications"
	"github.com/angelmondragon/homeserve-payments/internal/orders"
	"github.com/angelmondragon/homeserve-payments/internal/paymentmethods"
	"github.com/angelmondragon/homeserve-payments/internal/payments"
	"github.com/angelmondragon/homeserve-payments/internal/payments/providers"
	"github.com/angelmondragon/homeserve-payments/internal/receipts"
	"github.com/angelmondragon/homeserve-payments/pkg/config"
	"github.com/angelmondragon/homeserve-payments/pkg/db"
	"github.com/angelmondragon/homeserve-payments/pkg/logger"
	"github.com/angelmondragon/homeserve-payments/pkg/metrics"
	"github.com/angelmondragon/homeserve-payments/pkg/migrate"
	"github.com/angelmondragon/homeserve-payments/pkg/outbox"
	"github.com/angelmondragon/homeserve-payments/pkg/redis"
)

const shutdownTimeout = 20 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "api"

	logg = logger.FromConfig("api", cfg.App)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}

	registry, err := providers.FromConfig(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "failed to build provider registry", err)
		os.Exit(1)
	}

	locker, err := payments.NewRedisOrderLocker(redisClient, cfg.Payments.LockTTL, cfg.Payments.LockWait, logg)
	if err != nil {
		logg.Error(ctx, "failed to create order locker", err)
		os.Exit(1)
	}

	ledgerService, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(ctx, "failed to create ledger service", err)
		os.Exit(1)
	}

	paymentsService, err := payments.NewService(payments.ServiceParams{
		TxRunner:        dbClient,
		Orders:          orders.NewRepository(dbClient.DB()),
		Transactions:    payments.NewRepository(dbClient.DB()),
		Ledger:          ledgerService,
		Outbox:          outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Providers:       registry,
		Locker:          locker,
		Receipts:        receipts.NewPDFRenderer(cfg.Payments.ReceiptIssuer),
		Metrics:         metrics.NewSettlementMetrics(prometheus.DefaultRegisterer),
		Logger:          logg,
		ProviderTimeout: cfg.Payments.ProviderTimeout,
	})
	if err != nil {
		logg.Error(ctx, "failed to create payments service", err)
		os.Exit(1)
	}

	methodsService, err := paymentmethods.NewService(paymentmethods.NewRepository(dbClient.DB()), dbClient)
	if err != nil {
		logg.Error(ctx, "failed to create payment methods service", err)
		os.Exit(1)
	}

	notificationsService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(ctx, "failed to create notifications service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":       cfg.App.Env,
		"addr":      addr,
		"providers": registry.Types(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			redisClient,
			map[string]controllers.Pinger{"db": dbClient, "redis": redisClient},
			promhttp.Handler(),
			paymentsService,
			methodsService,
			notificationsService,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	exitCode := 0
	select {
	case err := <-serverErr:
		if err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			exitCode = 1
		}
	case <-ctx.Done():
		logg.Info(ctx, "api server shutting down gracefully")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := multierr.Combine(
		server.Shutdown(shutdownCtx),
		redisClient.Close(),
		dbClient.Close(),
	); err != nil {
		logg.Error(shutdownCtx, "error during shutdown", err)
		exitCode = 1
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
