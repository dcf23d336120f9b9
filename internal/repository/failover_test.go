package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"tattoostudio/internal/domain"
	"tattoostudio/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) SaveSession(ctx context.Context, session *models.Session, ttl time.Duration) error {
	args := m.Called(ctx, session, ttl)
	return args.Error(0)
}

func (m *mockStore) GetSession(ctx context.Context, token string) (*models.Session, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

func (m *mockStore) DeleteSession(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *mockStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func TestFailoverTokenStore(t *testing.T) {
	primary := new(mockStore)
	fallback := new(mockStore)
	logger := zerolog.New(io.Discard)
	repo := NewFailoverTokenStore(primary, fallback, &logger)
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		session := &models.Session{Token: "t1"}
		primary.On("GetSession", ctx, "t1").Return(session, nil).Once()

		got, err := repo.GetSession(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, session, got)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryMissChecksFallback", func(t *testing.T) {
		primary.On("GetSession", ctx, "t0").Return(nil, domain.ErrNotFound).Once()
		fallback.On("GetSession", ctx, "t0").Return(nil, domain.ErrNotFound).Once()

		_, err := repo.GetSession(ctx, "t0")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.False(t, repo.IsDown())
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		session := &models.Session{Token: "t2"}
		primary.On("GetSession", ctx, "t2").Return(nil, errors.New("connection refused")).Once()
		fallback.On("GetSession", ctx, "t2").Return(session, nil).Once()

		got, err := repo.GetSession(ctx, "t2")
		require.NoError(t, err)
		assert.Equal(t, session, got)
		assert.True(t, repo.IsDown())
	})

	t.Run("StaysOnFallbackWhileDown", func(t *testing.T) {
		session := &models.Session{Token: "t3"}
		fallback.On("SaveSession", ctx, session, time.Hour).Return(nil).Once()

		require.NoError(t, repo.SaveSession(ctx, session, time.Hour))
		primary.AssertNotCalled(t, "SaveSession", ctx, session, time.Hour)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		repo.mu.Lock()
		repo.lastCheck = time.Now().Add(-2 * time.Minute)
		repo.mu.Unlock()

		primary.On("CheckRateLimit", ctx, "a@b.c", 5, time.Minute).Return(true, nil).Once()

		allowed, err := repo.CheckRateLimit(ctx, "a@b.c", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.False(t, repo.IsDown())
	})

	t.Run("DeleteClearsBoth", func(t *testing.T) {
		fallback.On("DeleteSession", ctx, "t4").Return(nil).Once()
		primary.On("DeleteSession", ctx, "t4").Return(nil).Once()

		require.NoError(t, repo.DeleteSession(ctx, "t4"))
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})
}
