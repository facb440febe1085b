package entitlement

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/anon-questions/internal/models"
)

type MockIdentityRepository struct {
	mock.Mock
}

func (m *MockIdentityRepository) GetIdentity(ctx context.Context, id int64) (*models.Identity, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Identity), args.Error(1)
}

func (m *MockIdentityRepository) SetTrialEnd(ctx context.Context, id int64, end time.Time) (int, error) {
	args := m.Called(ctx, id, end)
	return args.Int(0), args.Error(1)
}

func (m *MockIdentityRepository) CreditReferral(ctx context.Context, referrerID int64, credit time.Duration) (int, error) {
	args := m.Called(ctx, referrerID, credit)
	return args.Int(0), args.Error(1)
}

func (m *MockIdentityRepository) GrantSubscription(ctx context.Context, id int64, tier string, expiry time.Time) (int, error) {
	args := m.Called(ctx, id, tier, expiry)
	return args.Int(0), args.Error(1)
}

func (m *MockIdentityRepository) SetPriority(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestService_EnsureTrial(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	trialLength := 72 * time.Hour

	tests := []struct {
		name       string
		setupMocks func(*MockIdentityRepository)
		wantErr    bool
	}{
		{
			name: "first session grants trial",
			setupMocks: func(r *MockIdentityRepository) {
				r.On("SetTrialEnd", mock.Anything, int64(100), now.Add(trialLength)).Return(1, nil).Once()
			},
		},
		{
			name: "repeated session does not extend trial",
			setupMocks: func(r *MockIdentityRepository) {
				r.On("SetTrialEnd", mock.Anything, int64(100), now.Add(trialLength)).Return(0, nil).Once()
			},
		},
		{
			name: "storage error",
			setupMocks: func(r *MockIdentityRepository) {
				r.On("SetTrialEnd", mock.Anything, int64(100), now.Add(trialLength)).
					Return(0, errors.New("db error")).Once()
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockIdentityRepository)
			tt.setupMocks(repo)

			service := New(repo, newNoopLogger(), trialLength, 168*time.Hour)
			err := service.EnsureTrial(context.Background(), 100, now)

			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestService_CreditReferral(t *testing.T) {
	credit := 168 * time.Hour

	tests := []struct {
		name          string
		referrerID    int64
		newIdentityID int64
		setupMocks    func(*MockIdentityRepository)
		wantErr       bool
	}{
		{
			name:          "referral credited",
			referrerID:    200,
			newIdentityID: 100,
			setupMocks: func(r *MockIdentityRepository) {
				r.On("CreditReferral", mock.Anything, int64(200), credit).Return(1, nil).Once()
			},
		},
		{
			name:          "self referral silently dropped",
			referrerID:    100,
			newIdentityID: 100,
			setupMocks:    func(_ *MockIdentityRepository) {},
		},
		{
			name:          "unknown referrer is not an error",
			referrerID:    999,
			newIdentityID: 100,
			setupMocks: func(r *MockIdentityRepository) {
				r.On("CreditReferral", mock.Anything, int64(999), credit).Return(0, nil).Once()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockIdentityRepository)
			tt.setupMocks(repo)

			service := New(repo, newNoopLogger(), 72*time.Hour, credit)
			err := service.CreditReferral(context.Background(), tt.referrerID, tt.newIdentityID)

			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestService_GrantSubscription(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		tier       string
		wantExpiry time.Time
		wantErr    bool
	}{
		{name: "month", tier: models.SubMonth, wantExpiry: now.AddDate(0, 0, 30)},
		{name: "year", tier: models.SubYear, wantExpiry: now.AddDate(0, 0, 365)},
		{name: "lifetime uses sentinel expiry", tier: models.SubLifetime, wantExpiry: models.LifetimeExpiry},
		{name: "unknown tier", tier: "weekly", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockIdentityRepository)
			if !tt.wantErr {
				repo.On("GrantSubscription", mock.Anything, int64(100), tt.tier, tt.wantExpiry).
					Return(1, nil).Once()
			}

			service := New(repo, newNoopLogger(), 72*time.Hour, 168*time.Hour)
			err := service.GrantSubscription(context.Background(), 100, tt.tier, now)

			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestService_IsActive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name       string
		setupMocks func(*MockIdentityRepository)
		want       bool
		wantErr    bool
	}{
		{
			name: "active trial",
			setupMocks: func(r *MockIdentityRepository) {
				r.On("GetIdentity", mock.Anything, int64(100)).
					Return(&models.Identity{ID: 100, TrialEnd: &future}, nil).Once()
			},
			want: true,
		},
		{
			name: "expired trial without subscription",
			setupMocks: func(r *MockIdentityRepository) {
				r.On("GetIdentity", mock.Anything, int64(100)).
					Return(&models.Identity{ID: 100, TrialEnd: &past}, nil).Once()
			},
			want: false,
		},
		{
			name: "expired trial but active subscription",
			setupMocks: func(r *MockIdentityRepository) {
				r.On("GetIdentity", mock.Anything, int64(100)).
					Return(&models.Identity{ID: 100, TrialEnd: &past, SubscriptionExpiry: &future}, nil).Once()
			},
			want: true,
		},
		{
			name: "lifetime subscription",
			setupMocks: func(r *MockIdentityRepository) {
				lifetime := models.LifetimeExpiry
				r.On("GetIdentity", mock.Anything, int64(100)).
					Return(&models.Identity{ID: 100, SubscriptionExpiry: &lifetime}, nil).Once()
			},
			want: true,
		},
		{
			name: "no trial and no subscription",
			setupMocks: func(r *MockIdentityRepository) {
				r.On("GetIdentity", mock.Anything, int64(100)).
					Return(&models.Identity{ID: 100}, nil).Once()
			},
			want: false,
		},
		{
			name: "expiry exactly now is closed",
			setupMocks: func(r *MockIdentityRepository) {
				exactly := now
				r.On("GetIdentity", mock.Anything, int64(100)).
					Return(&models.Identity{ID: 100, SubscriptionExpiry: &exactly}, nil).Once()
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockIdentityRepository)
			tt.setupMocks(repo)

			service := New(repo, newNoopLogger(), 72*time.Hour, 168*time.Hour)
			got, err := service.IsActive(context.Background(), 100, now)

			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			repo.AssertExpectations(t)
		})
	}
}
