// Package fulfillment собирает HTTP-приложение сервиса выдачи доступа.
package fulfillment

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/time/rate"

	"github.com/curadoria-elite-travel/fulfillment/internal/config"
	"github.com/curadoria-elite-travel/fulfillment/internal/http/handlers/access"
	"github.com/curadoria-elite-travel/fulfillment/internal/http/handlers/admin/grant"
	"github.com/curadoria-elite-travel/fulfillment/internal/http/handlers/checkout"
	"github.com/curadoria-elite-travel/fulfillment/internal/http/handlers/confirm"
	"github.com/curadoria-elite-travel/fulfillment/internal/http/handlers/health"
	"github.com/curadoria-elite-travel/fulfillment/internal/http/handlers/webhook/mpwebhook"
	"github.com/curadoria-elite-travel/fulfillment/internal/http/handlers/webhook/stripewebhook"
	"github.com/curadoria-elite-travel/fulfillment/internal/http/middlewarectx"
	fulfillmentservice "github.com/curadoria-elite-travel/fulfillment/internal/services/fulfillment"
)

// Deps зависимости маршрутов.
type Deps struct {
	Service    *fulfillmentservice.Service
	Identifier middlewarectx.Identifier
	Health     map[string]health.Pinger
	Metrics    http.Handler
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, cfg *config.Config, deps Deps) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)

	r.Route("/api/v1", func(r chi.Router) {
		// Вебхуки провайдеров, без пользователя
		r.Post("/webhooks/stripe", stripewebhook.New(logger, deps.Service, cfg.Stripe.WebhookSecret).ServeHTTP)
		r.Post("/webhooks/mercadopago", mpwebhook.New(logger, deps.Service, cfg.MercadoPago.WebhookSecret).ServeHTTP)

		// Пользователь из bearer-токена, если он есть
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.IdentityMiddleware(deps.Identifier, logger))
			r.Get("/access", access.New(logger, deps.Service).ServeHTTP)

			r.Group(func(r chi.Router) {
				r.Use(middlewarectx.RateLimitMiddleware(logger, limiter))
				r.Post("/checkout", checkout.New(logger, deps.Service, cfg.PublicBaseURL).ServeHTTP)
				r.Get("/confirm", confirm.New(logger, deps.Service).ServeHTTP)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.AdminKeyMiddleware(cfg.GrantKeyHash, logger))
			r.Post("/admin/grants", grant.New(logger, deps.Service).ServeHTTP)
		})
	})

	r.Get("/healthz", health.New(logger, deps.Health).ServeHTTP)
	r.Handle("/metrics", deps.Metrics)
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
