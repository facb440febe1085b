package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/magabrotheeeer/anon-questions/internal/models"
)

// CreatePendingPurchase сохраняет ожидающую корреляцию платежа:
// payload выбирается при выставлении счёта и вернётся в подтверждении.
func (s *Storage) CreatePendingPurchase(ctx context.Context, p models.PendingPurchase) error {
	const op = "storage.CreatePendingPurchase"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var contextJSON []byte
	if p.Context != nil {
		var err error
		contextJSON, err = json.Marshal(p.Context)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	query := `INSERT INTO pending_purchases (payload, user_id, kind, amount, context)
			  VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.DB.ExecContext(ctx, query,
		p.Payload, p.UserID, p.Kind, p.Amount, contextJSON); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ConsumePendingPurchase потребляет корреляцию ровно один раз: условный
// UPDATE помечает строку использованной, и повторное подтверждение того же
// платежа вернёт sql.ErrNoRows. Сумма и плательщик сверяются здесь же,
// чтобы подделанный payload не завершил чужое действие.
func (s *Storage) ConsumePendingPurchase(ctx context.Context, payload string, payerID int64, amount int) (*models.PendingPurchase, error) {
	const op = "storage.ConsumePendingPurchase"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE pending_purchases
			  SET consumed_at = now()
			  WHERE payload = $1 AND user_id = $2 AND amount = $3 AND consumed_at IS NULL
			  RETURNING payload, user_id, kind, amount, context, created_at, consumed_at`
	row := s.DB.QueryRowContext(ctx, query, payload, payerID, amount)
	p, err := scanPendingPurchase(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// ReleasePendingPurchase снимает отметку потребления с корреляции.
// Используется, когда оплаченное действие после потребления не удалось
// выполнить: повторная доставка подтверждения потребит корреляцию заново
// и доведёт действие до конца.
func (s *Storage) ReleasePendingPurchase(ctx context.Context, payload string) error {
	const op = "storage.ReleasePendingPurchase"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE pending_purchases
			  SET consumed_at = NULL
			  WHERE payload = $1 AND consumed_at IS NOT NULL`
	res, err := s.DB.ExecContext(ctx, query, payload)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, sql.ErrNoRows)
	}
	return nil
}

// GetPendingPurchase возвращает корреляцию по payload независимо от того,
// была ли она уже потреблена. Используется, чтобы отличить повторную
// доставку подтверждения от платежа без известной корреляции.
func (s *Storage) GetPendingPurchase(ctx context.Context, payload string) (*models.PendingPurchase, error) {
	const op = "storage.GetPendingPurchase"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT payload, user_id, kind, amount, context, created_at, consumed_at
			  FROM pending_purchases
			  WHERE payload = $1`
	row := s.DB.QueryRowContext(ctx, query, payload)
	p, err := scanPendingPurchase(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

func scanPendingPurchase(row rowScanner) (*models.PendingPurchase, error) {
	var p models.PendingPurchase
	var contextJSON []byte
	var consumedAt sql.NullTime
	if err := row.Scan(&p.Payload, &p.UserID, &p.Kind, &p.Amount,
		&contextJSON, &p.CreatedAt, &consumedAt); err != nil {
		return nil, err
	}
	if consumedAt.Valid {
		p.ConsumedAt = &consumedAt.Time
	}
	if len(contextJSON) > 0 {
		var pc models.PurchaseContext
		if err := json.Unmarshal(contextJSON, &pc); err != nil {
			return nil, err
		}
		p.Context = &pc
	}
	return &p, nil
}
