// Package paymentgateway собирает зависимости и маршруты платежного шлюза.
package paymentgateway

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/stablecoin-gateway/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/http/handlers/auth/register"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/http/handlers/payment/confirm"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/http/handlers/payment/poll"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/http/handlers/subscription/health"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/http/handlers/subscription/list"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/http/handlers/subscription/status"
	"github.com/magabrotheeeer/stablecoin-gateway/internal/http/middlewarectx"
	authservice "github.com/magabrotheeeer/stablecoin-gateway/internal/services/auth"
	gatewayservice "github.com/magabrotheeeer/stablecoin-gateway/internal/services/gateway"
	subservice "github.com/magabrotheeeer/stablecoin-gateway/internal/services/subscription"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(
	r chi.Router,
	logger *slog.Logger,
	authService *authservice.Service,
	gatewayService *gatewayservice.Service,
	subscriptionService *subservice.Service,
	readiness health.ReadinessChecker,
	limiter *rate.Limiter,
) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Post("/register", register.New(logger, authService).ServeHTTP)
		r.Post("/login", login.New(logger, authService).ServeHTTP)
		r.Get("/health", health.New(logger, readiness).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(authService, logger))
			r.Use(middlewarectx.RateLimitMiddleware(limiter, logger))
			r.Post("/payments/confirm", confirm.New(logger, gatewayService).ServeHTTP)
			r.Post("/payments/poll", poll.New(logger, gatewayService).ServeHTTP)
			r.Get("/subscriptions/status", status.New(logger, subscriptionService).ServeHTTP)
			r.Get("/subscriptions/list", list.New(logger, subscriptionService).ServeHTTP)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
