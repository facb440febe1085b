// Package sender превращает сообщения очередей в вызовы шлюза бота.
// Ошибка обработчика возвращается потребителю, и сообщение уходит
// в очередь повторно.
package sender

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/anon-questions/internal/models"
)

// Gateway описывает исходящие вызовы шлюза бота.
type Gateway interface {
	SendMessage(d models.Delivery) error
	SendInvoice(inv models.Invoice) error
	SendAlert(a models.OperatorAlert) error
}

// SenderService доставляет сообщения очередей через шлюз бота.
type SenderService struct {
	gateway Gateway
	log     *slog.Logger
}

// NewSenderService создает новый SenderService.
func NewSenderService(gateway Gateway, log *slog.Logger) *SenderService {
	return &SenderService{gateway: gateway, log: log}
}

// SendDeliveryText отправляет текст пользователю.
func (s *SenderService) SendDeliveryText(body []byte) error {
	const op = "sender.SendDeliveryText"

	var d models.Delivery
	if err := json.Unmarshal(body, &d); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.gateway.SendMessage(d); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("delivery sent", slog.Int64("identity_id", d.IdentityID))
	return nil
}

// SendDeliveryInvoice отправляет платёжное предложение.
func (s *SenderService) SendDeliveryInvoice(body []byte) error {
	const op = "sender.SendDeliveryInvoice"

	var inv models.Invoice
	if err := json.Unmarshal(body, &inv); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.gateway.SendInvoice(inv); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("invoice sent", slog.Int64("identity_id", inv.IdentityID),
		slog.String("payload", inv.Payload))
	return nil
}

// SendOperatorAlert отправляет сигнал оператору.
func (s *SenderService) SendOperatorAlert(body []byte) error {
	const op = "sender.SendOperatorAlert"

	var a models.OperatorAlert
	if err := json.Unmarshal(body, &a); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.gateway.SendAlert(a); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("operator alert sent", slog.Int64("payer_id", a.PayerID))
	return nil
}
