// Package directory реализует справочник пользователей: регистрацию
// при старте сессии и разрешение username в идентификатор.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/magabrotheeeer/anon-questions/internal/models"
)

// ErrNotFound возвращается, когда ни один пользователь не регистрировал
// такой username. Вызывающий показывает приглашение, а не ошибку.
var ErrNotFound = errors.New("identity not found")

// IdentityRepository определяет методы хранилища для справочника.
type IdentityRepository interface {
	// UpsertIdentity создаёт запись или обновляет username, сообщает о первой регистрации.
	UpsertIdentity(ctx context.Context, id int64, username string) (bool, error)
	// GetIdentity возвращает пользователя по идентификатору.
	GetIdentity(ctx context.Context, id int64) (*models.Identity, error)
	// ResolveUsername возвращает идентификатор по username.
	ResolveUsername(ctx context.Context, username string) (int64, error)
}

// Service реализует справочник пользователей.
type Service struct {
	repo IdentityRepository
	log  *slog.Logger
}

// New создает новый Service.
func New(repo IdentityRepository, log *slog.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// NormalizeHandle приводит username к ключу поиска: срезает ведущий @
// и опускает регистр. Пустое имя допустимо и хранится пустой строкой.
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
}

// RegisterOrTouch — идемпотентный upsert при старте сессии: создаёт запись
// при первой сессии и на каждой сессии перезаписывает username последним
// значением. Возвращает true, если это первая регистрация.
func (s *Service) RegisterOrTouch(ctx context.Context, id int64, handle string) (bool, error) {
	const op = "directory.RegisterOrTouch"

	created, err := s.repo.UpsertIdentity(ctx, id, NormalizeHandle(handle))
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if created {
		s.log.Info("registered new identity", slog.Int64("identity_id", id))
	}
	return created, nil
}

// Resolve разрешает username в идентификатор. Поиск регистронезависимый
// и best-effort: имена меняются, при коллизии побеждает последняя запись,
// поэтому промах — это "пригласи этого человека", а не жёсткая ошибка.
func (s *Service) Resolve(ctx context.Context, handle string) (int64, error) {
	const op = "directory.Resolve"

	id, err := s.repo.ResolveUsername(ctx, NormalizeHandle(handle))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

// Lookup возвращает пользователя по идентификатору.
func (s *Service) Lookup(ctx context.Context, id int64) (*models.Identity, error) {
	const op = "directory.Lookup"

	identity, err := s.repo.GetIdentity(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return identity, nil
}
