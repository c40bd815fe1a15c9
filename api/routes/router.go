package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/saffronhouse/orders-backend/api/controllers"
	analyticscontrollers "github.com/saffronhouse/orders-backend/api/controllers/analytics"
	ordercontrollers "github.com/saffronhouse/orders-backend/api/controllers/orders"
	paymentcontrollers "github.com/saffronhouse/orders-backend/api/controllers/payments"
	"github.com/saffronhouse/orders-backend/api/middleware"
	"github.com/saffronhouse/orders-backend/internal/analytics"
	"github.com/saffronhouse/orders-backend/internal/orders"
	phonepewebhook "github.com/saffronhouse/orders-backend/internal/webhooks/phonepe"
	"github.com/saffronhouse/orders-backend/pkg/config"
	"github.com/saffronhouse/orders-backend/pkg/db"
	"github.com/saffronhouse/orders-backend/pkg/enums"
	"github.com/saffronhouse/orders-backend/pkg/logger"
	"github.com/saffronhouse/orders-backend/pkg/redis"
)

// Cache is the redis surface the HTTP layer needs.
type Cache interface {
	redis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error
}

type signatureValidator interface {
	ValidateWebhookSignature(body []byte, provided string) bool
}

// Dependencies carries everything the router mounts.
type Dependencies struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           db.Pinger
	Cache        Cache
	Orders       orders.Service
	Analytics    analytics.Service
	Webhooks     paymentcontrollers.WebhookService
	WebhookGuard *phonepewebhook.IdempotencyGuard
	PhonePe      signatureValidator
	Realtime     http.Handler
	Metrics      http.Handler
	BusinessZone *time.Location
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	if cfg.App.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	orderPolicy := middleware.NewRateLimitPolicy(
		"orders",
		cfg.RateLimit.OrderCreateWindow,
		cfg.RateLimit.OrderCreateLimit,
		cfg.RateLimit.OrderPhoneLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.DB, deps.Cache, logg))
	})
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}
	if deps.Realtime != nil {
		r.Handle("/ws", deps.Realtime)
	}

	var guard paymentcontrollers.WebhookGuard
	if deps.WebhookGuard != nil {
		guard = deps.WebhookGuard
	}

	r.Route("/api", func(r chi.Router) {
		// Storefront. The same handlers answer under /orders and /payments/orders.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Idempotency(deps.Cache, logg))
			create := ordercontrollers.Create(deps.Orders, logg)
			limited := middleware.RateLimit(orderPolicy, deps.Cache, logg)
			r.With(limited).Post("/orders", create)
			r.With(limited).Post("/payments/orders", create)
			r.Get("/orders/{orderId}", ordercontrollers.Get(deps.Orders, logg))
			r.Get("/payments/orders/{orderId}", ordercontrollers.Get(deps.Orders, logg))
		})

		r.Route("/payments/phonepe", func(r chi.Router) {
			r.Get("/callback", paymentcontrollers.PhonePeCallback(deps.Orders, cfg.PhonePe.FrontendURL, logg))
			r.Post("/webhook", paymentcontrollers.PhonePeWebhook(deps.Webhooks, deps.PhonePe, guard, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.RequireRole(logg, enums.StaffRoleAdmin))
			r.Use(middleware.Idempotency(deps.Cache, logg))

			for _, prefix := range []string{"/orders", "/payments/orders"} {
				r.Get(prefix, ordercontrollers.List(deps.Orders, logg))
				r.Patch(prefix+"/{orderId}/status", ordercontrollers.UpdateStatus(deps.Orders, logg))
				r.Put(prefix+"/{orderId}/status", ordercontrollers.UpdateStatus(deps.Orders, logg))
			}
			r.Get("/orders/stats/dashboard", ordercontrollers.DashboardStats(deps.Orders, logg))
			r.Post("/orders/{orderId}/assign", ordercontrollers.Assign(deps.Orders, logg))
			r.Post("/orders/{orderId}/payment/retry", ordercontrollers.RetryPayment(deps.Orders, logg))
			r.Get("/admin/analytics/daily", analyticscontrollers.Daily(deps.Analytics, deps.BusinessZone, logg))
		})
	})

	return r
}
