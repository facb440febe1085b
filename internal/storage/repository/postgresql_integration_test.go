package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/anon-questions/internal/models"
)

func TestStorage_UpsertIdentity(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()

	created, err := storage.UpsertIdentity(ctx, 100, "alice")
	require.NoError(t, err)
	assert.True(t, created, "first upsert must report a new identity")

	// Повторная сессия: запись уже есть, username перезаписывается
	created, err = storage.UpsertIdentity(ctx, 100, "alice_new")
	require.NoError(t, err)
	assert.False(t, created)

	identity, err := storage.GetIdentity(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "alice_new", identity.Username)
}

func TestStorage_ResolveUsername(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)

	tests := []struct {
		name    string
		query   string
		wantID  int64
		wantErr bool
		setup   func(t *testing.T)
	}{
		{
			name:   "case insensitive lookup",
			query:  "bob",
			wantID: 200,
			setup: func(t *testing.T) {
				factory.CreateIdentity(t, 200, "Bob")
			},
		},
		{
			name:    "unknown username",
			query:   "nobody",
			wantErr: true,
			setup:   func(_ *testing.T) {},
		},
		{
			name:   "handle collision resolved by latest update",
			query:  "taken",
			wantID: 302,
			setup: func(t *testing.T) {
				// Пользователь 301 освободил имя, 302 занял его позже.
				_, err := storage.DB.Exec(`INSERT INTO users (user_id, username, updated_at)
					VALUES (301, 'taken', now() - interval '1 hour'),
					       (302, 'taken', now())`)
				require.NoError(t, err)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup(t)

			gotID, err := storage.ResolveUsername(ctx, tt.query)

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, sql.ErrNoRows)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, gotID)
		})
	}
}

func TestStorage_SetTrialEnd(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	factory.CreateIdentity(t, 100, "alice")

	firstEnd := time.Now().Add(72 * time.Hour).UTC()
	count, err := storage.SetTrialEnd(ctx, 100, firstEnd)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Повторная выдача не продлевает уже записанный период
	count, err = storage.SetTrialEnd(ctx, 100, firstEnd.Add(240*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	identity, err := storage.GetIdentity(ctx, 100)
	require.NoError(t, err)
	require.NotNil(t, identity.TrialEnd)
	assert.WithinDuration(t, firstEnd, *identity.TrialEnd, time.Second)
}

func TestStorage_SetReferrer(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	factory.CreateIdentity(t, 100, "alice")
	factory.CreateIdentity(t, 200, "bob")
	factory.CreateIdentity(t, 300, "carol")

	count, err := storage.SetReferrer(ctx, 100, 200)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Второй токен не перезаписывает пригласившего
	count, err = storage.SetReferrer(ctx, 100, 300)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	identity, err := storage.GetIdentity(ctx, 100)
	require.NoError(t, err)
	require.NotNil(t, identity.ReferrerID)
	assert.Equal(t, int64(200), *identity.ReferrerID)
}

func TestStorage_CreditReferral(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	factory.CreateIdentity(t, 200, "bob")

	credit := 168 * time.Hour

	count, err := storage.CreditReferral(ctx, 200, credit)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Бонусы складываются: второе зачисление продлевает от текущего окончания
	count, err = storage.CreditReferral(ctx, 200, credit)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	identity, err := storage.GetIdentity(ctx, 200)
	require.NoError(t, err)
	require.NotNil(t, identity.SubscriptionExpiry)
	assert.WithinDuration(t, time.Now().Add(2*credit), *identity.SubscriptionExpiry, 5*time.Second)
	assert.Equal(t, 2, identity.ReferralCount)
}

func TestStorage_GrantSubscription(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	factory.CreateIdentity(t, 200, "bob")

	firstExpiry := time.Now().AddDate(0, 0, 30).UTC()
	count, err := storage.GrantSubscription(ctx, 200, models.SubMonth, firstExpiry)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Повторная выдача перезаписывает окончание, а не складывает
	secondExpiry := time.Now().AddDate(0, 0, 365).UTC()
	count, err = storage.GrantSubscription(ctx, 200, models.SubYear, secondExpiry)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	identity, err := storage.GetIdentity(ctx, 200)
	require.NoError(t, err)
	require.NotNil(t, identity.SubscriptionExpiry)
	assert.WithinDuration(t, secondExpiry, *identity.SubscriptionExpiry, time.Second)
	assert.Equal(t, models.SubYear, identity.SubscriptionTier)

	count, err = storage.GrantSubscription(ctx, 999, models.SubMonth, firstExpiry)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestStorage_RecordAnswer(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	factory.CreateIdentity(t, 100, "alice")
	factory.CreateIdentity(t, 200, "bob")

	questionID := factory.CreateQuestion(t, 100, 200, "Как дела?", models.TierNormal, uuid.New().String())

	askerID, err := storage.RecordAnswer(ctx, questionID, "Отлично")
	require.NoError(t, err)
	assert.Equal(t, int64(100), askerID)

	// Второй ответ на тот же вопрос не проходит условный UPDATE
	_, err = storage.RecordAnswer(ctx, questionID, "Плохо")
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	var answer string
	err = storage.DB.QueryRow(`SELECT answer FROM questions WHERE id = $1`, questionID).Scan(&answer)
	require.NoError(t, err)
	assert.Equal(t, "Отлично", answer)
}

func TestStorage_RecordAnswer_Concurrent(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	factory.CreateIdentity(t, 100, "alice")
	factory.CreateIdentity(t, 200, "bob")

	questionID := factory.CreateQuestion(t, 100, 200, "Как дела?", models.TierNormal, uuid.New().String())

	const workers = 10
	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := storage.RecordAnswer(ctx, questionID, fmt.Sprintf("Ответ %d", i))
			if err == nil {
				succeeded.Add(1)
			} else {
				assert.ErrorIs(t, err, sql.ErrNoRows)
			}
		}(i)
	}
	wg.Wait()

	// Условный UPDATE пропускает ровно один из гонящихся ответов
	assert.Equal(t, int32(1), succeeded.Load())

	var answered bool
	err := storage.DB.QueryRow(`SELECT answered FROM questions WHERE id = $1`, questionID).Scan(&answered)
	require.NoError(t, err)
	assert.True(t, answered)
}

func TestStorage_FindPendingByToken(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	factory.CreateIdentity(t, 100, "alice")
	factory.CreateIdentity(t, 200, "bob")

	token := uuid.New().String()
	questionID := factory.CreateQuestion(t, 100, 200, "Вопрос", models.TierNormal, token)

	got, err := storage.FindPendingByToken(ctx, 200, token)
	require.NoError(t, err)
	assert.Equal(t, questionID, got.ID)

	// После ответа вопрос больше не ожидающий
	_, err = storage.RecordAnswer(ctx, questionID, "Ответ")
	require.NoError(t, err)

	_, err = storage.FindPendingByToken(ctx, 200, token)
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestStorage_FindPendingByBody(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	factory.CreateIdentity(t, 100, "alice")
	factory.CreateIdentity(t, 150, "dave")
	factory.CreateIdentity(t, 200, "bob")

	// Два одинаковых текста от разных пользователей
	firstID := factory.CreateQuestion(t, 100, 200, "Привет", models.TierNormal, uuid.New().String())
	secondID := factory.CreateQuestion(t, 150, 200, "Привет", models.TierNormal, uuid.New().String())

	got, err := storage.FindPendingByBody(ctx, 200, "Привет")
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Свежие первыми
	assert.Equal(t, secondID, got[0].ID)
	assert.Equal(t, firstID, got[1].ID)

	got, err = storage.FindPendingByBody(ctx, 200, "Нет такого текста")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStorage_CountStats(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	factory.CreateIdentity(t, 100, "alice")
	factory.CreateIdentity(t, 200, "bob")

	q1 := factory.CreateQuestion(t, 100, 200, "Первый", models.TierNormal, uuid.New().String())
	factory.CreateQuestion(t, 100, 200, "Второй", models.TierNormal, uuid.New().String())
	factory.CreateQuestion(t, 200, 100, "Встречный", models.TierNormal, uuid.New().String())

	_, err := storage.RecordAnswer(ctx, q1, "Ответ")
	require.NoError(t, err)

	stats, err := storage.CountStats(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sent)
	assert.Equal(t, 2, stats.Received)
	assert.Equal(t, 1, stats.Answered)
	assert.Equal(t, 1, stats.Pending)
}

func TestStorage_ConsumePendingPurchase(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	factory.CreateIdentity(t, 100, "alice")

	payload := uuid.New().String()
	factory.CreatePendingPurchase(t, payload, 100, models.KindSubMonth, 135)

	got, err := storage.ConsumePendingPurchase(ctx, payload, 100, 135)
	require.NoError(t, err)
	assert.Equal(t, models.KindSubMonth, got.Kind)
	require.NotNil(t, got.ConsumedAt)

	// Повторное подтверждение того же платежа
	_, err = storage.ConsumePendingPurchase(ctx, payload, 100, 135)
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	// Несовпадение суммы не потребляет корреляцию
	otherPayload := uuid.New().String()
	factory.CreatePendingPurchase(t, otherPayload, 100, models.KindSubYear, 1350)
	_, err = storage.ConsumePendingPurchase(ctx, otherPayload, 100, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestStorage_ReleasePendingPurchase(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	factory.CreateIdentity(t, 100, "alice")

	payload := uuid.New().String()
	factory.CreatePendingPurchase(t, payload, 100, models.KindSubMonth, 135)

	_, err := storage.ConsumePendingPurchase(ctx, payload, 100, 135)
	require.NoError(t, err)

	// После освобождения корреляцию можно потребить заново
	require.NoError(t, storage.ReleasePendingPurchase(ctx, payload))

	got, err := storage.ConsumePendingPurchase(ctx, payload, 100, 135)
	require.NoError(t, err)
	assert.Equal(t, models.KindSubMonth, got.Kind)

	// Освобождать нечего: корреляция не потреблена или не существует
	err = storage.ReleasePendingPurchase(ctx, uuid.New().String())
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestStorage_PendingPurchaseContext(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	factory.CreateIdentity(t, 100, "alice")

	payload := uuid.New().String()
	err := storage.CreatePendingPurchase(ctx, models.PendingPurchase{
		Payload: payload,
		UserID:  100,
		Kind:    models.KindElevatedQuestion,
		Amount:  50,
		Context: &models.PurchaseContext{ResponderID: 200, Body: "Отложенный вопрос"},
	})
	require.NoError(t, err)

	got, err := storage.GetPendingPurchase(ctx, payload)
	require.NoError(t, err)
	require.NotNil(t, got.Context)
	assert.Equal(t, int64(200), got.Context.ResponderID)
	assert.Equal(t, "Отложенный вопрос", got.Context.Body)
	assert.Nil(t, got.ConsumedAt)
}

func TestStorage_CheckDatabaseReady(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()

	require.NoError(t, storage.CheckDatabaseReady(ctx))

	_, err := storage.DB.Exec(`DROP TABLE pending_purchases CASCADE;
		DROP TABLE questions CASCADE`)
	require.NoError(t, err)

	err = storage.CheckDatabaseReady(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}
