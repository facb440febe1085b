// Package entitlement ведёт учёт доступа: пробный период, окончание
// подписки, реферальные бонусы и разовые купленные возможности.
package entitlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/anon-questions/internal/metrics"
	"github.com/magabrotheeeer/anon-questions/internal/models"
)

// IdentityRepository определяет методы хранилища для учёта доступа.
type IdentityRepository interface {
	// GetIdentity возвращает пользователя по идентификатору.
	GetIdentity(ctx context.Context, id int64) (*models.Identity, error)
	// SetTrialEnd выставляет конец пробного периода, если он не записан.
	SetTrialEnd(ctx context.Context, id int64, end time.Time) (int, error)
	// CreditReferral продлевает подписку пригласившего атомарным UPDATE.
	CreditReferral(ctx context.Context, referrerID int64, credit time.Duration) (int, error)
	// GrantSubscription перезаписывает окончание и уровень подписки.
	GrantSubscription(ctx context.Context, id int64, tier string, expiry time.Time) (int, error)
	// SetPriority отмечает купленный приоритетный показ.
	SetPriority(ctx context.Context, id int64) error
}

// Service реализует учёт доступа.
type Service struct {
	repo           IdentityRepository
	log            *slog.Logger
	trialLength    time.Duration
	referralCredit time.Duration
}

// New создает новый Service с настроенными окнами доступа.
func New(repo IdentityRepository, log *slog.Logger, trialLength, referralCredit time.Duration) *Service {
	return &Service{
		repo:           repo,
		log:            log,
		trialLength:    trialLength,
		referralCredit: referralCredit,
	}
}

// EnsureTrial выдаёт пробный период на первой сессии: конец периода
// записывается только если его ещё нет. Повторные вызовы на каждой сессии
// безопасны и не продлевают уже выданный период.
func (s *Service) EnsureTrial(ctx context.Context, id int64, now time.Time) error {
	const op = "entitlement.EnsureTrial"

	count, err := s.repo.SetTrialEnd(ctx, id, now.Add(s.trialLength))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if count > 0 {
		s.log.Info("trial granted", slog.Int64("identity_id", id))
	}
	return nil
}

// CreditReferral зачисляет реферальный бонус пригласившему: окончание
// подписки продлевается от большего из (сейчас, текущее окончание), бонусы
// складываются. Самоприглашение отбрасывается молча, без изменения учёта.
func (s *Service) CreditReferral(ctx context.Context, referrerID, newIdentityID int64) error {
	const op = "entitlement.CreditReferral"

	if referrerID == newIdentityID {
		s.log.Debug("self-referral rejected", slog.Int64("identity_id", referrerID))
		return nil
	}

	count, err := s.repo.CreditReferral(ctx, referrerID, s.referralCredit)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if count == 0 {
		s.log.Warn("referral credit for unknown identity", slog.Int64("referrer_id", referrerID))
		return nil
	}

	metrics.ReferralsCredited.Inc()
	s.log.Info("referral credited", slog.Int64("referrer_id", referrerID),
		slog.Int64("new_identity_id", newIdentityID))
	return nil
}

// GrantSubscription перезаписывает подписку: окончание считается от now,
// пожизненный уровень хранится сентинельной датой. В отличие от
// реферальных бонусов повторная выдача не складывается.
func (s *Service) GrantSubscription(ctx context.Context, id int64, tier string, now time.Time) error {
	const op = "entitlement.GrantSubscription"

	var expiry time.Time
	switch tier {
	case models.SubMonth:
		expiry = now.AddDate(0, 0, 30)
	case models.SubYear:
		expiry = now.AddDate(0, 0, 365)
	case models.SubLifetime:
		expiry = models.LifetimeExpiry
	default:
		return fmt.Errorf("%s: unknown tier %q", op, tier)
	}

	count, err := s.repo.GrantSubscription(ctx, id, tier, expiry)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if count == 0 {
		return fmt.Errorf("%s: identity %d not found", op, id)
	}

	s.log.Info("subscription granted", slog.Int64("identity_id", id),
		slog.String("tier", tier), slog.Time("expiry", expiry))
	return nil
}

// GrantPriority отмечает купленный приоритетный показ.
func (s *Service) GrantPriority(ctx context.Context, id int64) error {
	const op = "entitlement.GrantPriority"

	if err := s.repo.SetPriority(ctx, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// IsActive сообщает, открыт ли доступ: now раньше конца пробного периода
// или окончания подписки. Читает состояние из базы в момент вызова —
// доступ меняется асинхронно через подтверждения платежей, кешировать
// его нельзя.
func (s *Service) IsActive(ctx context.Context, id int64, now time.Time) (bool, error) {
	const op = "entitlement.IsActive"

	identity, err := s.repo.GetIdentity(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if identity.TrialEnd != nil && now.Before(*identity.TrialEnd) {
		return true, nil
	}
	if identity.SubscriptionExpiry != nil && now.Before(*identity.SubscriptionExpiry) {
		return true, nil
	}
	return false, nil
}
