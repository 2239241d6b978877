package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/homeserve-payments/api/controllers"
	"github.com/angelmondragon/homeserve-payments/api/middleware"
	"github.com/angelmondragon/homeserve-payments/internal/notifications"
	"github.com/angelmondragon/homeserve-payments/internal/paymentmethods"
	"github.com/angelmondragon/homeserve-payments/internal/payments"
	"github.com/angelmondragon/homeserve-payments/pkg/config"
	"github.com/angelmondragon/homeserve-payments/pkg/enums"
	"github.com/angelmondragon/homeserve-payments/pkg/logger"
	pkgredis "github.com/angelmondragon/homeserve-payments/pkg/redis"
)

// requestStore backs idempotent replays and per-user rate limits.
type requestStore interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	CounterKey(name string) string
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	store requestStore,
	readiness map[string]controllers.Pinger,
	metricsHandler http.Handler,
	paymentsSvc payments.Service,
	methodsSvc paymentmethods.Service,
	notificationsSvc notifications.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	payLimit := middleware.RateLimit(middleware.RateLimitPolicy{
		Name:   "payments",
		Window: cfg.Payments.RateLimitWindow,
		Limit:  cfg.Payments.RateLimit,
	}, store, logg)

	// money-moving calls keep their replay window longer than method setup
	settle := middleware.Idempotency(store, cfg.Payments.IdempotencyTTL, logg)
	replay := middleware.Idempotency(store, 24*time.Hour, logg)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/payments", func(r chi.Router) {
			r.With(payLimit, settle).Post("/", controllers.Pay(paymentsSvc, logg))
			r.Get("/", controllers.ListPayments(paymentsSvc, logg))
			r.Get("/order/{orderId}", controllers.ListOrderPayments(paymentsSvc, logg))
			r.Get("/status/{orderId}", controllers.PaymentStatus(paymentsSvc, logg))
			r.Get("/receipt/{transactionId}", controllers.PaymentReceipt(paymentsSvc, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin, enums.UserRoleFinance))
				r.Use(settle)
				r.Post("/refund/{transactionId}", controllers.RefundPayment(paymentsSvc, logg))
				r.Post("/refund-partial/{transactionId}", controllers.RefundPaymentPartial(paymentsSvc, logg))
				r.Post("/retry/{transactionId}", controllers.RetryPayment(paymentsSvc, logg))
			})

			r.Route("/methods", func(r chi.Router) {
				r.Get("/", controllers.ListPaymentMethods(methodsSvc, logg))
				r.With(replay).Post("/", controllers.CreatePaymentMethod(methodsSvc, logg))
				r.Delete("/{methodId}", controllers.DeletePaymentMethod(methodsSvc, logg))
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(notificationsSvc, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsSvc, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationsSvc, logg))
		})
	})

	return r
}
