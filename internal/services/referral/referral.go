// Package referral зачисляет реферальные бонусы: новый пользователь пришёл
// по ссылке — пригласившему продлевается подписка, ровно один раз
// на каждого нового пользователя.
package referral

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/magabrotheeeer/anon-questions/internal/models"
)

// IdentityRepository определяет методы хранилища для проверки пригласившего
// и однократной записи связи.
type IdentityRepository interface {
	GetIdentity(ctx context.Context, id int64) (*models.Identity, error)
	SetReferrer(ctx context.Context, id, referrerID int64) (int, error)
}

// EntitlementLedger описывает зачисление реферального бонуса.
type EntitlementLedger interface {
	CreditReferral(ctx context.Context, referrerID, newIdentityID int64) error
}

// Service реализует распространение реферальных бонусов.
type Service struct {
	repo   IdentityRepository
	ledger EntitlementLedger
	log    *slog.Logger
}

// New создает новый Service.
func New(repo IdentityRepository, ledger EntitlementLedger, log *slog.Logger) *Service {
	return &Service{repo: repo, ledger: ledger, log: log}
}

// OnNewSession обрабатывает реферальный токен из старта сессии. Бонус
// зачисляется только если это первая регистрация нового пользователя,
// токен разбирается в идентификатор существующего пользователя и это
// не самоприглашение. Повторные сессии с тем же токеном ничего не меняют.
func (s *Service) OnNewSession(ctx context.Context, newIdentityID int64, referralToken string, firstSession bool) error {
	const op = "referral.OnNewSession"

	if referralToken == "" || !firstSession {
		return nil
	}

	referrerID, err := strconv.ParseInt(referralToken, 10, 64)
	if err != nil {
		s.log.Debug("malformed referral token", slog.String("token", referralToken))
		return nil
	}
	if referrerID == newIdentityID {
		s.log.Debug("self-referral rejected", slog.Int64("identity_id", newIdentityID))
		return nil
	}

	if _, err := s.repo.GetIdentity(ctx, referrerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.log.Debug("referral token for unknown identity", slog.Int64("referrer_id", referrerID))
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	// Связь записывается однократно: повторная сессия с токеном
	// не пройдёт условный UPDATE и бонус не зачислится второй раз.
	count, err := s.repo.SetReferrer(ctx, newIdentityID, referrerID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if count == 0 {
		return nil
	}

	if err := s.ledger.CreditReferral(ctx, referrerID, newIdentityID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
