package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/magabrotheeeer/anon-questions/internal/models"
)

// CreateQuestion вставляет новый вопрос и возвращает его ID.
func (s *Storage) CreateQuestion(ctx context.Context, q models.Question) (int64, error) {
	const op = "storage.CreateQuestion"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO questions (from_user, to_user, body, tier, correlation_token)
			  VALUES ($1, $2, $3, $4, $5)
			  RETURNING id`
	var newID int64
	err := s.DB.QueryRowContext(ctx, query,
		q.FromUser, q.ToUser, q.Body, q.Tier, q.CorrelationToken).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// FindPendingByToken ищет неотвеченный вопрос респондента по корреляционному
// токену, вшитому в доставленное сообщение.
func (s *Storage) FindPendingByToken(ctx context.Context, responderID int64, token string) (*models.Question, error) {
	const op = "storage.FindPendingByToken"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, from_user, to_user, body, answer, answered, tier, likes,
			      correlation_token, created_at
			  FROM questions
			  WHERE to_user = $1 AND correlation_token = $2 AND answered = false`
	row := s.DB.QueryRowContext(ctx, query, responderID, token)
	q, err := scanQuestion(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return q, nil
}

// FindPendingByBody ищет неотвеченные вопросы респондента с точным
// совпадением текста, свежие первыми. Несколько строк означают
// неоднозначное совпадение, выбор остаётся за вызывающим.
func (s *Storage) FindPendingByBody(ctx context.Context, responderID int64, body string) ([]*models.Question, error) {
	const op = "storage.FindPendingByBody"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, from_user, to_user, body, answer, answered, tier, likes,
			      correlation_token, created_at
			  FROM questions
			  WHERE to_user = $1 AND body = $2 AND answered = false
			  ORDER BY created_at DESC, id DESC`
	rows, err := s.DB.QueryContext(ctx, query, responderID, body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, q)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// RecordAnswer записывает ответ и помечает вопрос отвеченным одним условным
// UPDATE: при уже отвеченном вопросе строка не меняется и возвращается
// sql.ErrNoRows. Два параллельных ответа не могут пройти оба.
func (s *Storage) RecordAnswer(ctx context.Context, questionID int64, answer string) (int64, error) {
	const op = "storage.RecordAnswer"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE questions
			  SET answer = $2, answered = true
			  WHERE id = $1 AND answered = false
			  RETURNING from_user`
	var askerID int64
	if err := s.DB.QueryRowContext(ctx, query, questionID, answer).Scan(&askerID); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return askerID, nil
}

// LikeQuestion атомарно увеличивает счётчик лайков и возвращает
// количество изменённых строк.
func (s *Storage) LikeQuestion(ctx context.Context, questionID int64) (int, error) {
	const op = "storage.LikeQuestion"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE questions SET likes = likes + 1 WHERE id = $1`
	result, err := s.DB.ExecContext(ctx, query, questionID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// CountStats подсчитывает агрегаты личного кабинета одним запросом.
func (s *Storage) CountStats(ctx context.Context, id int64) (*models.Stats, error) {
	const op = "storage.CountStats"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT
			      COUNT(*) FILTER (WHERE from_user = $1) AS sent,
			      COUNT(*) FILTER (WHERE to_user = $1) AS received,
			      COUNT(*) FILTER (WHERE to_user = $1 AND answered) AS answered
			  FROM questions
			  WHERE from_user = $1 OR to_user = $1`
	var st models.Stats
	if err := s.DB.QueryRowContext(ctx, query, id).Scan(&st.Sent, &st.Received, &st.Answered); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	st.Pending = st.Received - st.Answered
	return &st, nil
}

// ListReceived возвращает вопросы, адресованные пользователю, с пагинацией,
// свежие первыми.
func (s *Storage) ListReceived(ctx context.Context, id int64, limit, offset int) ([]*models.Question, error) {
	const op = "storage.ListReceived"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, from_user, to_user, body, answer, answered, tier, likes,
			      correlation_token, created_at
			  FROM questions
			  WHERE to_user = $1
			  ORDER BY created_at DESC, id DESC
			  LIMIT $2 OFFSET $3`
	rows, err := s.DB.QueryContext(ctx, query, id, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, q)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row rowScanner) (*models.Question, error) {
	var q models.Question
	var answer sql.NullString
	if err := row.Scan(&q.ID, &q.FromUser, &q.ToUser, &q.Body, &answer, &q.Answered,
		&q.Tier, &q.Likes, &q.CorrelationToken, &q.CreatedAt); err != nil {
		return nil, err
	}
	if answer.Valid {
		q.Answer = &answer.String
	}
	return &q, nil
}
