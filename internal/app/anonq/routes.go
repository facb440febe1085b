// Package anonq предоставляет маршруты для ядра сервиса.
package anonq

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/magabrotheeeer/anon-questions/internal/config"
	"github.com/magabrotheeeer/anon-questions/internal/http/handlers/callback"
	"github.com/magabrotheeeer/anon-questions/internal/http/handlers/export"
	"github.com/magabrotheeeer/anon-questions/internal/http/handlers/health"
	"github.com/magabrotheeeer/anon-questions/internal/http/handlers/message"
	"github.com/magabrotheeeer/anon-questions/internal/http/handlers/payment"
	"github.com/magabrotheeeer/anon-questions/internal/http/handlers/questions"
	"github.com/magabrotheeeer/anon-questions/internal/http/handlers/session"
	"github.com/magabrotheeeer/anon-questions/internal/http/handlers/stats"
	"github.com/magabrotheeeer/anon-questions/internal/http/middlewarectx"
	"github.com/magabrotheeeer/anon-questions/internal/lib/jwt"
	"github.com/magabrotheeeer/anon-questions/internal/services/askflow"
	"github.com/magabrotheeeer/anon-questions/internal/services/directory"
	"github.com/magabrotheeeer/anon-questions/internal/services/entitlement"
	"github.com/magabrotheeeer/anon-questions/internal/services/exchange"
	"github.com/magabrotheeeer/anon-questions/internal/services/reconciler"
	"github.com/magabrotheeeer/anon-questions/internal/services/referral"
	"github.com/magabrotheeeer/anon-questions/internal/storage/repository"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, cfg *config.Config,
	db *repository.Storage, tokenMaker jwt.Maker,
	directoryService *directory.Service, entitlementService *entitlement.Service,
	referralService *referral.Service, exchangeService *exchange.Service,
	reconcilerService *reconciler.Service, askflowService *askflow.Service) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// События от шлюза бота и платёжной платформы
		r.Route("/events", func(r chi.Router) {
			r.Post("/session", session.New(logger, directoryService, referralService,
				entitlementService, tokenMaker).ServeHTTP)
			r.Post("/message", message.New(logger, exchangeService, askflowService,
				directoryService, entitlementService, reconcilerService).ServeHTTP)
			r.Post("/callback", callback.New(logger, askflowService, exchangeService,
				reconcilerService).ServeHTTP)
			r.Post("/payment", payment.New(logger, reconcilerService,
				cfg.Payments.WebhookSecret).ServeHTTP)
		})

		// Личный кабинет мини-приложения, JWT обязателен
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(tokenMaker, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger))
			r.Get("/stats", stats.New(logger, exchangeService).ServeHTTP)
			r.Get("/questions", questions.New(logger, exchangeService).ServeHTTP)
			r.Post("/export", export.New(logger, reconcilerService).ServeHTTP)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", health.New(logger, db).ServeHTTP)
}
