package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/magabrotheeeer/anon-questions/internal/models"
)

// UpsertIdentity сохраняет пользователя при старте сессии: создаёт запись
// или перезаписывает username последним значением. Возвращает true,
// если запись только что создана (первая сессия).
func (s *Storage) UpsertIdentity(ctx context.Context, id int64, username string) (bool, error) {
	const op = "storage.UpsertIdentity"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	// xmax = 0 только у строки, вставленной этим же запросом.
	query := `INSERT INTO users (user_id, username, updated_at)
			  VALUES ($1, $2, now())
			  ON CONFLICT (user_id) DO UPDATE
			      SET username = excluded.username, updated_at = now()
			  RETURNING (xmax = 0)`
	var created bool
	if err := s.DB.QueryRowContext(ctx, query, id, username).Scan(&created); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return created, nil
}

// GetIdentity возвращает пользователя по его идентификатору.
func (s *Storage) GetIdentity(ctx context.Context, id int64) (*models.Identity, error) {
	const op = "storage.GetIdentity"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT user_id, username, trial_end, subscription_expiry, subscription_tier,
			      referrer_id, referral_count, is_celebrity, is_suspended, has_priority,
			      created_at, updated_at
			  FROM users
			  WHERE user_id = $1`
	u := &models.Identity{}
	row := s.DB.QueryRowContext(ctx, query, id)

	var trialEnd, subscriptionExpiry sql.NullTime
	var referrerID sql.NullInt64
	var tier sql.NullString
	if err := row.Scan(&u.ID, &u.Username, &trialEnd, &subscriptionExpiry, &tier,
		&referrerID, &u.ReferralCount, &u.IsCelebrity, &u.IsSuspended, &u.HasPriority,
		&u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if trialEnd.Valid {
		u.TrialEnd = &trialEnd.Time
	}
	if subscriptionExpiry.Valid {
		u.SubscriptionExpiry = &subscriptionExpiry.Time
	}
	if referrerID.Valid {
		u.ReferrerID = &referrerID.Int64
	}
	if tier.Valid {
		u.SubscriptionTier = tier.String
	}
	return u, nil
}

// ResolveUsername возвращает идентификатор пользователя по его username.
// Поиск регистронезависимый; при коллизии имён побеждает запись,
// обновлённая последней.
func (s *Storage) ResolveUsername(ctx context.Context, username string) (int64, error) {
	const op = "storage.ResolveUsername"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT user_id
			  FROM users
			  WHERE LOWER(username) = LOWER($1) AND username <> ''
			  ORDER BY updated_at DESC
			  LIMIT 1`
	var id int64
	if err := s.DB.QueryRowContext(ctx, query, username).Scan(&id); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

// SetTrialEnd выставляет конец пробного периода только если он ещё не записан.
// Возвращает количество изменённых строк: 0 означает, что пробный период
// уже был выдан ранее.
func (s *Storage) SetTrialEnd(ctx context.Context, id int64, end time.Time) (int, error) {
	const op = "storage.SetTrialEnd"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET trial_end = $2
			  WHERE user_id = $1 AND trial_end IS NULL`
	result, err := s.DB.ExecContext(ctx, query, id, end)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// SetReferrer записывает пригласившего, только если он ещё не записан.
// Возвращает количество изменённых строк.
func (s *Storage) SetReferrer(ctx context.Context, id, referrerID int64) (int, error) {
	const op = "storage.SetReferrer"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET referrer_id = $2
			  WHERE user_id = $1 AND referrer_id IS NULL`
	result, err := s.DB.ExecContext(ctx, query, id, referrerID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// CreditReferral продлевает подписку пригласившего на credit, считая
// от большего из (сейчас, текущее окончание), и увеличивает счётчик
// приглашений. Продление вычисляется внутри одного UPDATE, чтобы
// параллельное зачисление не потеряло обновление.
func (s *Storage) CreditReferral(ctx context.Context, referrerID int64, credit time.Duration) (int, error) {
	const op = "storage.CreditReferral"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET subscription_expiry = GREATEST(COALESCE(subscription_expiry, now()), now())
			          + make_interval(secs => $2),
			      referral_count = referral_count + 1
			  WHERE user_id = $1`
	result, err := s.DB.ExecContext(ctx, query, referrerID, credit.Seconds())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// GrantSubscription перезаписывает окончание и уровень подписки.
// В отличие от CreditReferral продления не складываются: каждый вызов
// задаёт окончание заново.
func (s *Storage) GrantSubscription(ctx context.Context, id int64, tier string, expiry time.Time) (int, error) {
	const op = "storage.GrantSubscription"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET subscription_expiry = $3, subscription_tier = $2
			  WHERE user_id = $1`
	result, err := s.DB.ExecContext(ctx, query, id, tier, expiry)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// SetPriority отмечает у пользователя купленный приоритетный показ.
func (s *Storage) SetPriority(ctx context.Context, id int64) error {
	const op = "storage.SetPriority"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users SET has_priority = true WHERE user_id = $1`
	if _, err := s.DB.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
