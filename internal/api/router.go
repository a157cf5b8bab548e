package api

import (
	"net/http"

	"github.com/ayo6706/trade-escrow/internal/api/handler"
	"github.com/ayo6706/trade-escrow/internal/api/middleware"
	"github.com/ayo6706/trade-escrow/internal/api/spec"
	"github.com/ayo6706/trade-escrow/internal/config"
	"github.com/ayo6706/trade-escrow/internal/domain"
	"github.com/ayo6706/trade-escrow/internal/idempotency"
	"github.com/ayo6706/trade-escrow/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

type Router struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     handler.Pinger
	redis     redis.Cmdable
	idemStore *idempotency.Store
	svc       *service.Services
}

// NewRouter builds the HTTP surface. rdb may be nil when Redis is not configured.
func NewRouter(cfg *config.Config, logger *zap.Logger, store handler.Pinger, rdb redis.Cmdable, idemStore *idempotency.Store, svc *service.Services) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{cfg: cfg, logger: logger, store: store, redis: rdb, idemStore: idemStore, svc: svc}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))

	health := handler.NewHealthHandler(api.store, api.redis)
	rfqs := handler.NewRFQHandler(api.svc.RFQs)
	offers := handler.NewOfferHandler(api.svc.Offers)
	deals := handler.NewDealHandler(api.svc.Views, api.svc.Logistics)
	wallets := handler.NewWalletHandler(api.svc.Ledger)
	fx := handler.NewFXHandler(api.svc.FX)
	payments := handler.NewPaymentHandler(api.svc.Payments)
	webhooks := handler.NewWebhookHandler(api.svc.Webhook)

	r.Get("/health/live", health.Live)
	r.Get("/health/ready", health.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/docs/index.html", http.StatusMovedPermanently)
	})

	r.Route("/v1", func(r chi.Router) {
		// Public Routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))
			r.Post("/webhooks/deposits", webhooks.HandleDepositWebhook)
		})

		// Protected Routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware)
			r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

			r.Route("/rfqs", func(r chi.Router) {
				r.Post("/", rfqs.Create)
				r.Get("/", rfqs.List)
				r.Get("/{id}", rfqs.Get)
				r.Patch("/{id}", rfqs.Update)
				r.Post("/{id}/send", rfqs.Send)
				r.Post("/{id}/close", rfqs.Close)
				r.Post("/{id}/offers", offers.Create)
				r.Get("/{id}/offers", offers.ListByRFQ)
			})

			r.Route("/offers", func(r chi.Router) {
				r.Get("/{id}", offers.Get)
				r.Post("/{id}/accept", offers.Accept)
				r.Post("/{id}/reject", offers.Reject)
			})

			r.Get("/orders", deals.ListOrders)
			r.Get("/orders/{id}", deals.GetOrder)

			r.Route("/deals", func(r chi.Router) {
				r.Get("/", deals.List)
				r.Get("/{id}", deals.Get)
				r.Get("/{id}/history", deals.History)
				r.Post("/{id}/delivery", deals.UpdateDelivery)
				r.Post("/{id}/confirm-receipt", deals.ConfirmReceipt)
				r.Post("/{id}/close", deals.Close)
			})

			r.Get("/wallets", wallets.List)

			r.Get("/fx/rates", fx.Rates)
			r.Post("/fx/quote", fx.Quote)

			r.Route("/payments", func(r chi.Router) {
				r.With(middleware.IdempotencyMiddleware(api.idemStore, api.logger)).Post("/", payments.Create)
				r.Get("/", payments.List)
				r.Get("/{id}", payments.Get)
				r.With(middleware.RequireRole(domain.RoleAdmin)).Post("/{id}/fail", payments.Fail)
			})
		})
	})

	return r
}
