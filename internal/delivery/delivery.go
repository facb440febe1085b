// Package delivery публикует исходящие сообщения в очереди RabbitMQ.
// Доставка — fire-and-forget: консистентность ядра не зависит от того,
// дойдёт ли сообщение до пользователя; сбой публикации логируется
// вызывающей стороной и не ретраится ядром.
package delivery

import (
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/anon-questions/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/anon-questions/internal/models"
)

const exchange = "deliveries"

// Service публикует сообщения в exchange deliveries.
type Service struct {
	ch  *amqp.Channel
	log *slog.Logger
}

// New создает новый Service поверх открытого канала.
func New(ch *amqp.Channel, log *slog.Logger) *Service {
	return &Service{ch: ch, log: log}
}

// SendText ставит в очередь текст пользователю.
func (s *Service) SendText(d models.Delivery) error {
	return rabbitmq.Publish(s.ch, exchange, "text", d)
}

// SendInvoice ставит в очередь предложение оплаты.
func (s *Service) SendInvoice(inv models.Invoice) error {
	return rabbitmq.Publish(s.ch, exchange, "invoice", inv)
}

// SendAlert ставит в очередь сигнал оператору.
func (s *Service) SendAlert(a models.OperatorAlert) error {
	return rabbitmq.Publish(s.ch, exchange, "alert", a)
}
