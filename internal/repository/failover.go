package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"tattoostudio/internal/domain"
	"tattoostudio/internal/models"

	"github.com/rs/zerolog"
)

// SessionStore is a TokenStore that can also throttle sign-in attempts.
type SessionStore interface {
	domain.TokenStore
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

const failoverRetryAfter = time.Minute

// FailoverTokenStore uses primary (Redis) until it fails and then serves from
// fallback (memory), probing primary again after a minute.
type FailoverTokenStore struct {
	primary  SessionStore
	fallback SessionStore
	logger   *zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverTokenStore(primary, fallback SessionStore, logger *zerolog.Logger) *FailoverTokenStore {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &FailoverTokenStore{primary: primary, fallback: fallback, logger: logger}
}

func (r *FailoverTokenStore) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary session store failed, falling back to memory")
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
	r.isDown.Store(true)
}

// usePrimary reports whether the call should go to primary, allowing one
// probe per retry interval while it is down.
func (r *FailoverTokenStore) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastCheck) > failoverRetryAfter {
		r.lastCheck = time.Now()
		return true
	}
	return false
}

func (r *FailoverTokenStore) recovered() {
	if r.isDown.CompareAndSwap(true, false) {
		r.logger.Info().Msg("Primary session store recovered")
	}
}

// IsDown reports whether calls are currently served by the fallback.
func (r *FailoverTokenStore) IsDown() bool {
	return r.isDown.Load()
}

func (r *FailoverTokenStore) SaveSession(ctx context.Context, session *models.Session, ttl time.Duration) error {
	if r.usePrimary() {
		err := r.primary.SaveSession(ctx, session, ttl)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SaveSession(ctx, session, ttl)
}

func (r *FailoverTokenStore) GetSession(ctx context.Context, token string) (*models.Session, error) {
	if r.usePrimary() {
		session, err := r.primary.GetSession(ctx, token)
		if err == nil {
			r.recovered()
			return session, nil
		}
		if errors.Is(err, domain.ErrNotFound) {
			r.recovered()
			// Sessions issued while primary was down live only in the fallback.
			return r.fallback.GetSession(ctx, token)
		}
		r.markDown(err)
	}
	return r.fallback.GetSession(ctx, token)
}

func (r *FailoverTokenStore) DeleteSession(ctx context.Context, token string) error {
	// Always clear the fallback copy as well.
	_ = r.fallback.DeleteSession(ctx, token)
	if r.usePrimary() {
		err := r.primary.DeleteSession(ctx, token)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return nil
}

func (r *FailoverTokenStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			r.recovered()
			return allowed, nil
		}
		r.markDown(err)
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
