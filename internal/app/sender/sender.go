// Package sender собирает сервис доставки: потребителей очередей
// и клиента шлюза бота.
package sender

import (
	"context"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/anon-questions/internal/botgateway"
	"github.com/magabrotheeeer/anon-questions/internal/config"
	"github.com/magabrotheeeer/anon-questions/internal/lib/rabbitmq"
	senderservice "github.com/magabrotheeeer/anon-questions/internal/services/sender"
)

// App — собранный сервис доставки.
type App struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	senderService *senderservice.SenderService
	logger        *slog.Logger
}

// New создаёт App сервиса доставки.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, 5, 2*time.Second)
	if err != nil {
		return nil, err
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetDeliveryQueues())
	if err != nil {
		conn.Close()
		return nil, err
	}

	gateway := botgateway.NewClient(cfg.BotGateway.APIURL, cfg.BotGateway.APIToken, cfg.BotGateway.Timeout)
	senderService := senderservice.NewSenderService(gateway, logger)

	return &App{
		conn:          conn,
		ch:            ch,
		senderService: senderService,
		logger:        logger,
	}, nil
}

// Run запускает потребителей очередей и ждёт отмены контекста.
func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.Consume(ctx, a.ch, rabbitmq.QueueDeliveries, a.senderService.SendDeliveryText)
	if err != nil {
		a.logger.Error("failed to start delivery.text consumer", slog.Any("err", err))
		return err
	}

	err = rabbitmq.Consume(ctx, a.ch, rabbitmq.QueueInvoices, a.senderService.SendDeliveryInvoice)
	if err != nil {
		a.logger.Error("failed to start delivery.invoice consumer", slog.Any("err", err))
		return err
	}

	err = rabbitmq.Consume(ctx, a.ch, rabbitmq.QueueOperatorAlerts, a.senderService.SendOperatorAlert)
	if err != nil {
		a.logger.Error("failed to start operator.alert consumer", slog.Any("err", err))
		return err
	}

	<-ctx.Done()
	a.logger.Info("sender service shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", slog.Any("err", err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", slog.Any("err", err))
	}
	return nil
}
