// Package anonq собирает ядро сервиса анонимных вопросов: хранилище,
// кеш, очереди и HTTP-сервер событий и кабинета.
package anonq

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/anon-questions/internal/cache"
	"github.com/magabrotheeeer/anon-questions/internal/config"
	"github.com/magabrotheeeer/anon-questions/internal/delivery"
	"github.com/magabrotheeeer/anon-questions/internal/lib/jwt"
	"github.com/magabrotheeeer/anon-questions/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/anon-questions/internal/migrations"
	"github.com/magabrotheeeer/anon-questions/internal/services/askflow"
	"github.com/magabrotheeeer/anon-questions/internal/services/directory"
	"github.com/magabrotheeeer/anon-questions/internal/services/entitlement"
	"github.com/magabrotheeeer/anon-questions/internal/services/exchange"
	"github.com/magabrotheeeer/anon-questions/internal/services/reconciler"
	"github.com/magabrotheeeer/anon-questions/internal/services/referral"
	"github.com/magabrotheeeer/anon-questions/internal/storage/repository"
)

// App — собранное ядро сервиса с HTTP-сервером.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	conn   *amqp.Connection
	ch     *amqp.Channel
}

// New создаёт App: подключает зависимости, прогоняет миграции и собирает маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, 5, 2*time.Second)
	if err != nil {
		return nil, err
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetDeliveryQueues())
	if err != nil {
		conn.Close()
		return nil, err
	}

	queue := delivery.New(ch, logger)

	directoryService := directory.New(db, logger)
	entitlementService := entitlement.New(db, logger, cfg.Entitlement.TrialLength, cfg.Entitlement.ReferralCredit)
	referralService := referral.New(db, entitlementService, logger)
	exchangeService := exchange.New(db, db, queue, cacheRedis, logger)
	reconcilerService := reconciler.New(db, entitlementService, exchangeService, queue, cfg.Payments, logger)
	askflowService := askflow.New(cacheRedis, directoryService, logger, cfg.Entitlement.AskFlowTTL)
	tokenMaker := jwt.NewMaker(cfg.JWTToken.JWTSecretKey, cfg.JWTToken.TokenTTL)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg, db, tokenMaker,
		directoryService, entitlementService, referralService,
		exchangeService, reconcilerService, askflowService)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.TimeoutHTTP,
		WriteTimeout: cfg.HTTPServer.TimeoutHTTP,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
		conn:   conn,
		ch:     ch,
	}, nil
}

// Run запускает HTTP-сервер и останавливает его по отмене контекста.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		if chErr := a.ch.Close(); chErr != nil {
			a.logger.Error("failed to close channel", slog.Any("err", chErr))
		}
		if connErr := a.conn.Close(); connErr != nil {
			a.logger.Error("failed to close connection", slog.Any("err", connErr))
		}
		a.db.DB.Close()
		return err
	}
}
