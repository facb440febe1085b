// Package reconciler сводит подтверждения платежей с ожидающими
// корреляциями: вид действия выбирается при выставлении счёта и хранится
// на сервере, подтверждение приносит только payload. Повторные доставки
// одного подтверждения — no-op; несопоставленный платёж уходит оператору
// и никогда не отбрасывается молча.
package reconciler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/anon-questions/internal/config"
	"github.com/magabrotheeeer/anon-questions/internal/metrics"
	"github.com/magabrotheeeer/anon-questions/internal/models"
)

// Исходы обработки подтверждения.
const (
	OutcomeGranted   = "granted"   // подписка выдана
	OutcomeCompleted = "completed" // разовое действие выполнено
	OutcomeDuplicate = "duplicate" // повторная доставка, ничего не изменилось
	OutcomeUnmatched = "unmatched" // корреляция не найдена, сигнал оператору
)

// PurchaseRepository определяет методы хранилища корреляций платежей.
type PurchaseRepository interface {
	CreatePendingPurchase(ctx context.Context, p models.PendingPurchase) error
	ConsumePendingPurchase(ctx context.Context, payload string, payerID int64, amount int) (*models.PendingPurchase, error)
	ReleasePendingPurchase(ctx context.Context, payload string) error
	GetPendingPurchase(ctx context.Context, payload string) (*models.PendingPurchase, error)
}

// EntitlementLedger описывает выдачу подписок и разовых возможностей.
type EntitlementLedger interface {
	GrantSubscription(ctx context.Context, id int64, tier string, now time.Time) error
	GrantPriority(ctx context.Context, id int64) error
}

// Asker завершает отложенный элитный вопрос после оплаты.
type Asker interface {
	Ask(ctx context.Context, askerID, responderID int64, body, tier string) (int64, error)
}

// DeliveryQueue описывает постановку исходящих сообщений в очередь.
type DeliveryQueue interface {
	SendText(d models.Delivery) error
	SendInvoice(inv models.Invoice) error
	SendAlert(a models.OperatorAlert) error
}

// Service реализует сведение платежей.
type Service struct {
	purchases PurchaseRepository
	ledger    EntitlementLedger
	asker     Asker
	queue     DeliveryQueue
	prices    config.Payments
	log       *slog.Logger
}

// New создает новый Service с прейскурантом из конфига.
func New(purchases PurchaseRepository, ledger EntitlementLedger, asker Asker,
	queue DeliveryQueue, prices config.Payments, log *slog.Logger) *Service {
	return &Service{
		purchases: purchases,
		ledger:    ledger,
		asker:     asker,
		queue:     queue,
		prices:    prices,
		log:       log,
	}
}

// Price возвращает цену вида действия из прейскуранта.
func (s *Service) Price(kind string) (int, error) {
	switch kind {
	case models.KindSubMonth:
		return s.prices.PriceSubMonth, nil
	case models.KindSubYear:
		return s.prices.PriceSubYear, nil
	case models.KindSubLifetime:
		return s.prices.PriceSubLifetime, nil
	case models.KindElevatedQuestion:
		return s.prices.PriceElevatedQuestion, nil
	case models.KindDataExport:
		return s.prices.PriceDataExport, nil
	case models.KindPriorityBump:
		return s.prices.PricePriorityBump, nil
	default:
		return 0, fmt.Errorf("unknown purchase kind %q", kind)
	}
}

func invoiceTitle(kind string) string {
	switch kind {
	case models.KindSubMonth:
		return "Подписка на месяц"
	case models.KindSubYear:
		return "Подписка на год"
	case models.KindSubLifetime:
		return "Подписка навсегда"
	case models.KindElevatedQuestion:
		return "Элитный вопрос"
	case models.KindDataExport:
		return "Экспорт данных"
	case models.KindPriorityBump:
		return "Приоритетный показ"
	default:
		return kind
	}
}

// CreateInvoice выставляет счёт: сохраняет корреляцию с видом действия
// и контекстом и ставит в очередь предложение оплаты. Возвращённый счёт
// несёт payload, который платформа вернёт в подтверждении.
func (s *Service) CreateInvoice(ctx context.Context, userID int64, kind string, pctx *models.PurchaseContext) (*models.Invoice, error) {
	const op = "reconciler.CreateInvoice"

	amount, err := s.Price(kind)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	payload := uuid.New().String()
	if err := s.purchases.CreatePendingPurchase(ctx, models.PendingPurchase{
		Payload: payload,
		UserID:  userID,
		Kind:    kind,
		Amount:  amount,
		Context: pctx,
	}); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	invoice := models.Invoice{
		IdentityID: userID,
		Title:      invoiceTitle(kind),
		Amount:     amount,
		Payload:    payload,
	}
	if err := s.queue.SendInvoice(invoice); err != nil {
		s.log.Warn("failed to queue invoice", slog.String("payload", payload), slog.Any("err", err))
	}

	s.log.Info("invoice created", slog.Int64("identity_id", userID),
		slog.String("kind", kind), slog.Int("amount", amount))
	return &invoice, nil
}

// OnPaymentConfirmed обрабатывает подтверждение платежа. Корреляция
// потребляется ровно один раз; повторная доставка того же подтверждения
// ничего не меняет. Деньги без известной корреляции — сигнал оператору.
func (s *Service) OnPaymentConfirmed(ctx context.Context, payerID int64, amount int, payload string) (string, error) {
	const op = "reconciler.OnPaymentConfirmed"
	log := s.log.With(slog.String("op", op), slog.Int64("payer_id", payerID),
		slog.String("payload", payload))

	purchase, err := s.purchases.ConsumePendingPurchase(ctx, payload, payerID, amount)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		return s.classifyMiss(ctx, payerID, amount, payload, log)
	}

	switch purchase.Kind {
	case models.KindSubMonth:
		err = s.ledger.GrantSubscription(ctx, payerID, models.SubMonth, time.Now())
	case models.KindSubYear:
		err = s.ledger.GrantSubscription(ctx, payerID, models.SubYear, time.Now())
	case models.KindSubLifetime:
		err = s.ledger.GrantSubscription(ctx, payerID, models.SubLifetime, time.Now())
	case models.KindElevatedQuestion:
		if purchase.Context == nil {
			err = fmt.Errorf("%s: elevated question without context", op)
			break
		}
		_, err = s.asker.Ask(ctx, payerID, purchase.Context.ResponderID,
			purchase.Context.Body, models.TierElevated)
	case models.KindDataExport:
		// Сборку выгрузки делает внешний рендерер; отсюда уходит только
		// уведомление пользователю.
		err = s.queue.SendText(models.Delivery{
			IdentityID: payerID,
			Text:       "Экспорт данных готовится, файл придёт отдельным сообщением",
		})
	case models.KindPriorityBump:
		err = s.ledger.GrantPriority(ctx, payerID)
	default:
		err = fmt.Errorf("%s: unknown purchase kind %q", op, purchase.Kind)
	}
	if err != nil {
		// Корреляция потреблена, а действие не выполнено. Снимаем отметку,
		// чтобы повторная доставка потребила её заново и довела действие.
		// Если снять не удалось, повтор придёт как duplicate — тогда деньги
		// без действия отдаются оператору, а не теряются молча.
		if relErr := s.purchases.ReleasePendingPurchase(ctx, payload); relErr != nil {
			log.Error("failed to release consumed purchase", slog.Any("err", relErr))
			if alertErr := s.queue.SendAlert(models.OperatorAlert{
				PayerID: payerID,
				Amount:  amount,
				Payload: payload,
				Reason:  "payment consumed but the paid action failed",
			}); alertErr != nil {
				log.Error("failed to alert operator", slog.Any("err", alertErr))
			}
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}

	outcome := OutcomeCompleted
	switch purchase.Kind {
	case models.KindSubMonth, models.KindSubYear, models.KindSubLifetime:
		outcome = OutcomeGranted
	}
	metrics.PaymentsProcessed.WithLabelValues(outcome).Inc()
	log.Info("payment reconciled", slog.String("kind", purchase.Kind), slog.String("outcome", outcome))
	return outcome, nil
}

// classifyMiss разбирает промах потребления: повторная доставка уже
// использованной корреляции или платёж без известной корреляции.
func (s *Service) classifyMiss(ctx context.Context, payerID int64, amount int, payload string, log *slog.Logger) (string, error) {
	const op = "reconciler.classifyMiss"

	existing, err := s.purchases.GetPendingPurchase(ctx, payload)
	if err == nil && existing.ConsumedAt != nil && existing.UserID == payerID {
		metrics.PaymentsProcessed.WithLabelValues(OutcomeDuplicate).Inc()
		log.Info("duplicate payment confirmation ignored")
		return OutcomeDuplicate, nil
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	metrics.PaymentsProcessed.WithLabelValues(OutcomeUnmatched).Inc()
	log.Error("unmatched payment confirmation")
	if alertErr := s.queue.SendAlert(models.OperatorAlert{
		PayerID: payerID,
		Amount:  amount,
		Payload: payload,
		Reason:  "payment confirmed but no pending purchase matches",
	}); alertErr != nil {
		// Сигнал оператору терять нельзя: если очередь недоступна,
		// возвращаем ошибку, чтобы платформа повторила доставку.
		return "", fmt.Errorf("%s: %w", op, alertErr)
	}
	return OutcomeUnmatched, nil
}
