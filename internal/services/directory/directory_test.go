package directory

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/anon-questions/internal/models"
)

type MockIdentityRepository struct {
	mock.Mock
}

func (m *MockIdentityRepository) UpsertIdentity(ctx context.Context, id int64, username string) (bool, error) {
	args := m.Called(ctx, id, username)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdentityRepository) GetIdentity(ctx context.Context, id int64) (*models.Identity, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Identity), args.Error(1)
}

func (m *MockIdentityRepository) ResolveUsername(ctx context.Context, username string) (int64, error) {
	args := m.Called(ctx, username)
	return args.Get(0).(int64), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestNormalizeHandle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"@Alice", "alice"},
		{"Alice", "alice"},
		{"  @BOB  ", "bob"},
		{"", ""},
		{"@", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeHandle(tt.in), "input %q", tt.in)
	}
}

func TestService_RegisterOrTouch(t *testing.T) {
	repo := new(MockIdentityRepository)
	// Ведущий @ и регистр срезаются до записи
	repo.On("UpsertIdentity", mock.Anything, int64(100), "alice").Return(true, nil).Once()

	service := New(repo, newNoopLogger())
	created, err := service.RegisterOrTouch(context.Background(), 100, "@Alice")

	require.NoError(t, err)
	assert.True(t, created)
	repo.AssertExpectations(t)
}

func TestService_Resolve(t *testing.T) {
	tests := []struct {
		name       string
		handle     string
		setupMocks func(*MockIdentityRepository)
		wantID     int64
		wantErr    error
	}{
		{
			name:   "resolves with normalization",
			handle: "@Bob",
			setupMocks: func(r *MockIdentityRepository) {
				r.On("ResolveUsername", mock.Anything, "bob").Return(int64(200), nil).Once()
			},
			wantID: 200,
		},
		{
			name:   "unknown handle",
			handle: "nobody",
			setupMocks: func(r *MockIdentityRepository) {
				r.On("ResolveUsername", mock.Anything, "nobody").
					Return(int64(0), sql.ErrNoRows).Once()
			},
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockIdentityRepository)
			tt.setupMocks(repo)

			service := New(repo, newNoopLogger())
			gotID, err := service.Resolve(context.Background(), tt.handle)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantID, gotID)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestService_Lookup(t *testing.T) {
	repo := new(MockIdentityRepository)
	repo.On("GetIdentity", mock.Anything, int64(300)).
		Return(&models.Identity{ID: 300, IsCelebrity: true}, nil).Once()
	repo.On("GetIdentity", mock.Anything, int64(999)).
		Return(nil, sql.ErrNoRows).Once()

	service := New(repo, newNoopLogger())

	identity, err := service.Lookup(context.Background(), 300)
	require.NoError(t, err)
	assert.True(t, identity.IsCelebrity)

	_, err = service.Lookup(context.Background(), 999)
	require.ErrorIs(t, err, ErrNotFound)
	repo.AssertExpectations(t)
}
