// Package askflow ведёт многошаговый диалог "задать вопрос" как явный
// конечный автомат: состояние хранится в redis по идентификатору
// пользователя, а не в памяти процесса, и переживает его перезапуск.
package askflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/anon-questions/internal/models"
	"github.com/magabrotheeeer/anon-questions/internal/services/directory"
)

// State — шаг диалога.
type State string

const (
	// StateAwaitingHandle — ждём username адресата.
	StateAwaitingHandle State = "awaiting_handle"
	// StateAwaitingTier — ждём выбор тарифа вопроса.
	StateAwaitingTier State = "awaiting_tier"
	// StateAwaitingBody — ждём текст вопроса.
	StateAwaitingBody State = "awaiting_body"
)

// Подсказки шагов диалога.
const (
	PromptHandle   = "Напиши username (с @ или без):"
	PromptTier     = "Какой вопрос: обычный или элитный?"
	PromptBody     = "Напиши вопрос:"
	PromptNotFound = "Этот пользователь ещё не запускал бота"
)

// Flow — значение состояния диалога, сериализуется в redis.
type Flow struct {
	State    State  `json:"state"`
	TargetID int64  `json:"target_id,omitempty"`
	Tier     string `json:"tier,omitempty"`
}

// AskIntent — собранный диалогом запрос на вопрос.
type AskIntent struct {
	TargetID int64
	Tier     string
	Body     string
}

// Result — исход одного шага: подсказка пользователю и, на последнем шаге,
// готовый запрос.
type Result struct {
	Prompt string
	Ask    *AskIntent
}

// ErrNoFlow — у пользователя нет начатого диалога.
var ErrNoFlow = errors.New("no ask flow in progress")

// Resolver разрешает username в идентификатор.
type Resolver interface {
	Resolve(ctx context.Context, handle string) (int64, error)
}

// Cache описывает хранение состояния диалога.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
	Invalidate(key string) error
}

// Service реализует конечный автомат диалога.
type Service struct {
	cache    Cache
	resolver Resolver
	log      *slog.Logger
	ttl      time.Duration
}

// New создает новый Service; ttl ограничивает жизнь брошенного диалога.
func New(cache Cache, resolver Resolver, log *slog.Logger, ttl time.Duration) *Service {
	return &Service{cache: cache, resolver: resolver, log: log, ttl: ttl}
}

func flowKey(identityID int64) string {
	return fmt.Sprintf("askflow:%d", identityID)
}

// Start начинает диалог с шага выбора адресата и возвращает подсказку.
func (s *Service) Start(ctx context.Context, identityID int64) (string, error) {
	const op = "askflow.Start"

	if err := s.cache.Set(flowKey(identityID), Flow{State: StateAwaitingHandle}, s.ttl); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return PromptHandle, nil
}

// Advance продвигает диалог очередным сообщением пользователя.
// Возвращает подсказку следующего шага; на последнем шаге Result.Ask
// заполнен, а состояние диалога очищено.
func (s *Service) Advance(ctx context.Context, identityID int64, text string) (*Result, error) {
	const op = "askflow.Advance"

	var flow Flow
	found, err := s.cache.Get(flowKey(identityID), &flow)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !found {
		return nil, ErrNoFlow
	}

	switch flow.State {
	case StateAwaitingHandle:
		targetID, err := s.resolver.Resolve(ctx, text)
		if err != nil {
			if errors.Is(err, directory.ErrNotFound) {
				// Шаг не меняется: пользователь может прислать другое имя.
				return &Result{Prompt: PromptNotFound}, nil
			}
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		flow.State = StateAwaitingTier
		flow.TargetID = targetID
		if err := s.cache.Set(flowKey(identityID), flow, s.ttl); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return &Result{Prompt: PromptTier}, nil

	case StateAwaitingTier:
		flow.State = StateAwaitingBody
		flow.Tier = parseTier(text)
		if err := s.cache.Set(flowKey(identityID), flow, s.ttl); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return &Result{Prompt: PromptBody}, nil

	case StateAwaitingBody:
		if err := s.cache.Invalidate(flowKey(identityID)); err != nil {
			s.log.Warn("failed to clear ask flow", slog.Int64("identity_id", identityID),
				slog.Any("err", err))
		}
		return &Result{Ask: &AskIntent{
			TargetID: flow.TargetID,
			Tier:     flow.Tier,
			Body:     text,
		}}, nil

	default:
		return nil, fmt.Errorf("%s: unknown state %q", op, flow.State)
	}
}

// parseTier разбирает ответ на шаге тарифа; всё нераспознанное считается
// обычным вопросом.
func parseTier(text string) string {
	switch text {
	case "элитный", "elevated":
		return models.TierElevated
	default:
		return models.TierNormal
	}
}
