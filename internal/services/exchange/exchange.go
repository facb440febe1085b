// Package exchange реализует обмен вопросами и ответами: создание вопроса
// с анонимной доставкой, корреляцию ответа с ожидающим вопросом
// и одноразовую запись ответа.
package exchange

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/anon-questions/internal/metrics"
	"github.com/magabrotheeeer/anon-questions/internal/models"
)

var (
	// ErrAlreadyAnswered — вопрос уже отвечен; повторный ответ на то же
	// сообщение вызывающий молча игнорирует.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrNoMatch — для ответа не нашлось ожидающего вопроса.
	ErrNoMatch = errors.New("no pending question matches reply")
	// ErrUnknownResponder — адресат не регистрировался в боте.
	ErrUnknownResponder = errors.New("responder is not registered")
	// ErrSuspended — адресат заблокирован и не принимает вопросы.
	ErrSuspended = errors.New("responder is suspended")
)

// QuestionRepository определяет методы хранилища для вопросов.
type QuestionRepository interface {
	CreateQuestion(ctx context.Context, q models.Question) (int64, error)
	FindPendingByToken(ctx context.Context, responderID int64, token string) (*models.Question, error)
	FindPendingByBody(ctx context.Context, responderID int64, body string) ([]*models.Question, error)
	RecordAnswer(ctx context.Context, questionID int64, answer string) (int64, error)
	LikeQuestion(ctx context.Context, questionID int64) (int, error)
	CountStats(ctx context.Context, id int64) (*models.Stats, error)
	ListReceived(ctx context.Context, id int64, limit, offset int) ([]*models.Question, error)
}

// IdentityRepository определяет проверку адресата перед созданием вопроса.
type IdentityRepository interface {
	GetIdentity(ctx context.Context, id int64) (*models.Identity, error)
}

// DeliveryQueue описывает постановку исходящих сообщений в очередь.
type DeliveryQueue interface {
	SendText(d models.Delivery) error
}

// Cache описывает методы для кэширования агрегатов кабинета.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
}

// Service реализует обмен вопросами и ответами.
type Service struct {
	repo       QuestionRepository
	identities IdentityRepository
	queue      DeliveryQueue
	cache      Cache
	log        *slog.Logger
}

// New создает новый Service.
func New(repo QuestionRepository, identities IdentityRepository, queue DeliveryQueue,
	cache Cache, log *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		identities: identities,
		queue:      queue,
		cache:      cache,
		log:        log,
	}
}

// Ask создаёт вопрос и ставит в очередь анонимную доставку адресату:
// в доставленном тексте нет ничего о спросившем, корреляционный токен
// уезжает метаданными сообщения и вернётся с ответом. Оплату элитного
// тарифа проверяет вызывающий до вызова Ask.
func (s *Service) Ask(ctx context.Context, askerID, responderID int64, body, tier string) (int64, error) {
	const op = "exchange.Ask"

	responder, err := s.identities.GetIdentity(ctx, responderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrUnknownResponder
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if responder.IsSuspended {
		return 0, ErrSuspended
	}

	token := uuid.New().String()
	id, err := s.repo.CreateQuestion(ctx, models.Question{
		FromUser:         askerID,
		ToUser:           responderID,
		Body:             body,
		Tier:             tier,
		CorrelationToken: token,
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	metrics.QuestionsAsked.WithLabelValues(tier).Inc()
	s.log.Info("question created", slog.Int64("question_id", id), slog.String("tier", tier))

	text := fmt.Sprintf("Новый анонимный вопрос:\n\n%s\n\nОтветь на это сообщение — ответ уйдёт анонимно", body)
	if err := s.queue.SendText(models.Delivery{
		IdentityID:       responderID,
		Text:             text,
		CorrelationToken: token,
	}); err != nil {
		s.log.Warn("failed to queue question delivery", slog.Int64("question_id", id),
			slog.Any("err", err))
	}

	return id, nil
}

// MatchPendingForReply находит ожидающий вопрос для пришедшего ответа.
// Основной путь — корреляционный токен из метаданных цитируемого сообщения.
// Если шлюз токен потерял, остаётся сопоставление по точному тексту:
// при нескольких кандидатах берётся самый свежий, а неоднозначность
// логируется как предупреждение о качестве данных.
func (s *Service) MatchPendingForReply(ctx context.Context, responderID int64, token, quotedBody string) (*models.Question, error) {
	const op = "exchange.MatchPendingForReply"

	if token != "" {
		q, err := s.repo.FindPendingByToken(ctx, responderID, token)
		if err == nil {
			return q, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		// Токен есть, но вопроса нет: либо уже отвечен, либо токен чужой.
		// Падать на текстовое сопоставление здесь нельзя — ответ с точным
		// токеном не должен уходить другому вопросу.
		return nil, ErrNoMatch
	}

	candidates, err := s.repo.FindPendingByBody(ctx, responderID, quotedBody)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(candidates) == 0 {
		return nil, ErrNoMatch
	}
	if len(candidates) > 1 {
		s.log.Warn("ambiguous reply match, picking most recent",
			slog.Int64("responder_id", responderID),
			slog.Int("candidates", len(candidates)))
	}
	return candidates[0], nil
}

// RecordAnswer записывает ответ ровно один раз и ставит в очередь
// анонимную доставку спросившему. Возвращает идентификатор спросившего.
// Повторный ответ на тот же вопрос возвращает ErrAlreadyAnswered.
func (s *Service) RecordAnswer(ctx context.Context, questionID int64, answerBody string) (int64, error) {
	const op = "exchange.RecordAnswer"

	askerID, err := s.repo.RecordAnswer(ctx, questionID, answerBody)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			metrics.AnswersRecorded.WithLabelValues("already_answered").Inc()
			return 0, ErrAlreadyAnswered
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	metrics.AnswersRecorded.WithLabelValues("ok").Inc()
	s.log.Info("answer recorded", slog.Int64("question_id", questionID))

	if err := s.queue.SendText(models.Delivery{
		IdentityID: askerID,
		Text:       fmt.Sprintf("Тебе ответили анонимно:\n\n%s", answerBody),
	}); err != nil {
		s.log.Warn("failed to queue answer delivery", slog.Int64("question_id", questionID),
			slog.Any("err", err))
	}

	return askerID, nil
}

// Like увеличивает счётчик лайков вопроса.
func (s *Service) Like(ctx context.Context, questionID int64) error {
	const op = "exchange.Like"

	count, err := s.repo.LikeQuestion(ctx, questionID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if count == 0 {
		return ErrNoMatch
	}
	return nil
}

// Stats возвращает агрегаты кабинета, ненадолго кешируя их.
func (s *Service) Stats(ctx context.Context, id int64) (*models.Stats, error) {
	const op = "exchange.Stats"

	var cached models.Stats
	cacheKey := fmt.Sprintf("stats:%d", id)
	found, err := s.cache.Get(cacheKey, &cached)
	if err != nil {
		s.log.Warn("failed to read stats cache", slog.String("key", cacheKey), slog.Any("err", err))
	}
	if found {
		return &cached, nil
	}

	stats, err := s.repo.CountStats(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.cache.Set(cacheKey, stats, time.Minute); err != nil {
		s.log.Warn("failed to cache stats", slog.String("key", cacheKey), slog.Any("err", err))
	}
	return stats, nil
}

// ListReceived возвращает вопросы, адресованные пользователю, для кабинета.
func (s *Service) ListReceived(ctx context.Context, id int64, limit, offset int) ([]*models.Question, error) {
	const op = "exchange.ListReceived"

	questions, err := s.repo.ListReceived(ctx, id, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return questions, nil
}
