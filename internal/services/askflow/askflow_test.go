package askflow

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/anon-questions/internal/models"
	"github.com/magabrotheeeer/anon-questions/internal/services/directory"
)

type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(key string, result any) (bool, error) {
	args := m.Called(key, result)
	if args.Bool(0) {
		*(result.(*Flow)) = args.Get(2).(Flow)
	}
	return args.Bool(0), args.Error(1)
}

func (m *MockCache) Set(key string, value any, expiration time.Duration) error {
	args := m.Called(key, value, expiration)
	return args.Error(0)
}

func (m *MockCache) Invalidate(key string) error {
	args := m.Called(key)
	return args.Error(0)
}

type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Resolve(ctx context.Context, handle string) (int64, error) {
	args := m.Called(ctx, handle)
	return args.Get(0).(int64), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestService_Start(t *testing.T) {
	cache := new(MockCache)
	cache.On("Set", "askflow:100", Flow{State: StateAwaitingHandle}, 30*time.Minute).
		Return(nil).Once()

	service := New(cache, new(MockResolver), newNoopLogger(), 30*time.Minute)
	prompt, err := service.Start(context.Background(), 100)

	require.NoError(t, err)
	assert.Equal(t, PromptHandle, prompt)
	cache.AssertExpectations(t)
}

func TestService_Advance(t *testing.T) {
	ttl := 30 * time.Minute

	tests := []struct {
		name       string
		text       string
		setupMocks func(*MockCache, *MockResolver)
		wantPrompt string
		wantAsk    *AskIntent
		wantErr    error
	}{
		{
			name: "no flow in progress",
			text: "привет",
			setupMocks: func(c *MockCache, _ *MockResolver) {
				c.On("Get", "askflow:100", mock.Anything).Return(false, nil).Once()
			},
			wantErr: ErrNoFlow,
		},
		{
			name: "handle step resolves target and asks for tier",
			text: "@Bob",
			setupMocks: func(c *MockCache, r *MockResolver) {
				c.On("Get", "askflow:100", mock.Anything).
					Return(true, nil, Flow{State: StateAwaitingHandle}).Once()
				r.On("Resolve", mock.Anything, "@Bob").Return(int64(200), nil).Once()
				c.On("Set", "askflow:100", Flow{State: StateAwaitingTier, TargetID: 200}, ttl).
					Return(nil).Once()
			},
			wantPrompt: PromptTier,
		},
		{
			name: "unknown handle keeps the flow on the same step",
			text: "@nobody",
			setupMocks: func(c *MockCache, r *MockResolver) {
				c.On("Get", "askflow:100", mock.Anything).
					Return(true, nil, Flow{State: StateAwaitingHandle}).Once()
				r.On("Resolve", mock.Anything, "@nobody").
					Return(int64(0), directory.ErrNotFound).Once()
			},
			wantPrompt: PromptNotFound,
		},
		{
			name: "tier step accepts elevated",
			text: "элитный",
			setupMocks: func(c *MockCache, _ *MockResolver) {
				c.On("Get", "askflow:100", mock.Anything).
					Return(true, nil, Flow{State: StateAwaitingTier, TargetID: 200}).Once()
				c.On("Set", "askflow:100",
					Flow{State: StateAwaitingBody, TargetID: 200, Tier: models.TierElevated}, ttl).
					Return(nil).Once()
			},
			wantPrompt: PromptBody,
		},
		{
			name: "tier step defaults anything else to normal",
			text: "давай обычный",
			setupMocks: func(c *MockCache, _ *MockResolver) {
				c.On("Get", "askflow:100", mock.Anything).
					Return(true, nil, Flow{State: StateAwaitingTier, TargetID: 200}).Once()
				c.On("Set", "askflow:100",
					Flow{State: StateAwaitingBody, TargetID: 200, Tier: models.TierNormal}, ttl).
					Return(nil).Once()
			},
			wantPrompt: PromptBody,
		},
		{
			name: "body step completes the flow and clears state",
			text: "Какой твой любимый цвет?",
			setupMocks: func(c *MockCache, _ *MockResolver) {
				c.On("Get", "askflow:100", mock.Anything).
					Return(true, nil, Flow{State: StateAwaitingBody, TargetID: 200, Tier: models.TierNormal}).Once()
				c.On("Invalidate", "askflow:100").Return(nil).Once()
			},
			wantAsk: &AskIntent{TargetID: 200, Tier: models.TierNormal, Body: "Какой твой любимый цвет?"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := new(MockCache)
			resolver := new(MockResolver)
			tt.setupMocks(cache, resolver)

			service := New(cache, resolver, newNoopLogger(), ttl)
			result, err := service.Advance(context.Background(), 100, tt.text)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.wantAsk != nil {
				require.NotNil(t, result.Ask)
				assert.Equal(t, tt.wantAsk, result.Ask)
			} else {
				assert.Nil(t, result.Ask)
				assert.Equal(t, tt.wantPrompt, result.Prompt)
			}
			cache.AssertExpectations(t)
			resolver.AssertExpectations(t)
		})
	}
}
