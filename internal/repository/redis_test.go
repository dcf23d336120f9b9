package repository

import (
	"context"
	"testing"
	"time"

	"tattoostudio/internal/config"
	"tattoostudio/internal/domain"
	"tattoostudio/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisTokenStore(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := NewRedisClient(config.RedisConfig{Address: s.Addr()})
	defer client.Close()

	repo := NewRedisTokenStore(client)
	ctx := context.Background()

	t.Run("SaveAndGetSession", func(t *testing.T) {
		session := &models.Session{
			Token: "tok-1",
			User:  models.User{ID: "u1", Email: "admin@studio.test"},
		}
		require.NoError(t, repo.SaveSession(ctx, session, time.Hour))

		got, err := repo.GetSession(ctx, "tok-1")
		require.NoError(t, err)
		assert.Equal(t, "u1", got.User.ID)
		assert.Equal(t, "admin@studio.test", got.User.Email)
		assert.True(t, s.Exists("session:tok-1"))
	})

	t.Run("SessionExpires", func(t *testing.T) {
		require.NoError(t, repo.SaveSession(ctx, &models.Session{Token: "short"}, time.Minute))
		s.FastForward(2 * time.Minute)

		_, err := repo.GetSession(ctx, "short")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("DeleteSession", func(t *testing.T) {
		require.NoError(t, repo.DeleteSession(ctx, "tok-1"))
		_, err := repo.GetSession(ctx, "tok-1")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("RateLimit", func(t *testing.T) {
		key := "admin@studio.test"
		window := time.Second

		allowed, err := repo.CheckRateLimit(ctx, key, 2, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = repo.CheckRateLimit(ctx, key, 2, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = repo.CheckRateLimit(ctx, key, 2, window)
		require.NoError(t, err)
		assert.False(t, allowed)

		s.FastForward(window + time.Millisecond)

		allowed, err = repo.CheckRateLimit(ctx, key, 2, window)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("NilClient", func(t *testing.T) {
		repo := NewRedisTokenStore(nil)
		_, err := repo.GetSession(ctx, "x")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis client is nil")
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, Ping(ctx, client))
	})

	t.Run("ServerDown", func(t *testing.T) {
		s.Close()
		err := repo.SaveSession(ctx, &models.Session{Token: "x"}, time.Minute)
		assert.Error(t, err)
	})
}
