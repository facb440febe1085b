package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDataFactory содержит методы для создания тестовых данных
type TestDataFactory struct {
	storage *Storage
}

// NewTestDataFactory создает новую фабрику тестовых данных
func NewTestDataFactory(storage *Storage) *TestDataFactory {
	return &TestDataFactory{storage: storage}
}

// CreateIdentity создает тестового пользователя
func (f *TestDataFactory) CreateIdentity(t *testing.T, id int64, username string) {
	_, err := f.storage.DB.Exec(`INSERT INTO users (user_id, username)
		VALUES ($1, $2)`, id, username)
	require.NoError(t, err)
}

// CreateIdentityWithAccess создает пользователя с пробным периодом и подпиской
func (f *TestDataFactory) CreateIdentityWithAccess(t *testing.T, id int64, username string,
	trialEnd, subscriptionExpiry *time.Time, tier string) {
	_, err := f.storage.DB.Exec(`INSERT INTO users
		(user_id, username, trial_end, subscription_expiry, subscription_tier)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))`,
		id, username, trialEnd, subscriptionExpiry, tier)
	require.NoError(t, err)
}

// CreateQuestion создает тестовый вопрос и возвращает его идентификатор
func (f *TestDataFactory) CreateQuestion(t *testing.T, fromUser, toUser int64, body, tier, token string) int64 {
	var id int64
	err := f.storage.DB.QueryRow(`INSERT INTO questions
		(from_user, to_user, body, tier, correlation_token)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		fromUser, toUser, body, tier, token).Scan(&id)
	require.NoError(t, err)
	return id
}

// CreatePendingPurchase создает тестовую корреляцию платежа
func (f *TestDataFactory) CreatePendingPurchase(t *testing.T, payload string, userID int64, kind string, amount int) {
	_, err := f.storage.DB.Exec(`INSERT INTO pending_purchases (payload, user_id, kind, amount)
		VALUES ($1, $2, $3, $4)`, payload, userID, kind, amount)
	require.NoError(t, err)
}

// setupTestDatabase создает тестовую БД с контейнером PostgreSQL
func setupTestDatabase(t *testing.T) (*Storage, func()) {
	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(3*time.Minute)),
	)
	require.NoError(t, err, "failed to start container")

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	// Пробуем подключиться несколько раз с ретраями
	var storage *Storage
	for range 10 {
		storage, err = New(connStr)
		if err == nil {
			err = storage.DB.Ping()
			if err == nil {
				break
			}
		}
		time.Sleep(1 * time.Second)
	}
	require.NoError(t, err, "failed to create storage after retries")

	// Создаем таблицы
	_, err = storage.DB.Exec(`
        DROP TABLE IF EXISTS pending_purchases CASCADE;
        DROP TABLE IF EXISTS questions CASCADE;
        DROP TABLE IF EXISTS users CASCADE;

        CREATE TABLE users (
            user_id BIGINT PRIMARY KEY,
            username TEXT NOT NULL DEFAULT '',
            trial_end TIMESTAMPTZ,
            subscription_expiry TIMESTAMPTZ,
            subscription_tier TEXT,
            referrer_id BIGINT,
            referral_count INT NOT NULL DEFAULT 0,
            is_celebrity BOOLEAN NOT NULL DEFAULT false,
            is_suspended BOOLEAN NOT NULL DEFAULT false,
            has_priority BOOLEAN NOT NULL DEFAULT false,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        );

        CREATE INDEX idx_users_username_lower ON users (LOWER(username));

        CREATE TABLE questions (
            id BIGSERIAL PRIMARY KEY,
            from_user BIGINT NOT NULL REFERENCES users(user_id),
            to_user BIGINT NOT NULL REFERENCES users(user_id),
            body TEXT NOT NULL,
            answer TEXT,
            answered BOOLEAN NOT NULL DEFAULT false,
            tier TEXT NOT NULL DEFAULT 'normal',
            likes INT NOT NULL DEFAULT 0,
            correlation_token UUID NOT NULL UNIQUE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now()
        );

        CREATE INDEX idx_questions_pending ON questions (to_user) WHERE NOT answered;

        CREATE TABLE pending_purchases (
            payload UUID PRIMARY KEY,
            user_id BIGINT NOT NULL REFERENCES users(user_id),
            kind TEXT NOT NULL,
            amount INT NOT NULL,
            context JSONB,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            consumed_at TIMESTAMPTZ
        );
    `)
	require.NoError(t, err, "failed to create tables")

	cleanup := func() {
		if storage != nil && storage.DB != nil {
			_ = storage.DB.Close()
		}
		if postgresContainer != nil {
			_ = postgresContainer.Terminate(ctx)
		}
	}

	return storage, cleanup
}
