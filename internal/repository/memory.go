package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tattoostudio/internal/domain"
	"tattoostudio/internal/models"

	"github.com/google/uuid"
)

type memorySession struct {
	session   models.Session
	expiresAt time.Time
}

// MemoryTokenStore keeps sessions and sign-in counters in process memory.
type MemoryTokenStore struct {
	sessions   sync.Map
	rateLimits sync.Map
	now        func() time.Time
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{now: time.Now}
}

func (r *MemoryTokenStore) SaveSession(ctx context.Context, session *models.Session, ttl time.Duration) error {
	entry := memorySession{session: *session}
	if ttl > 0 {
		entry.expiresAt = r.now().Add(ttl)
	}
	r.sessions.Store(session.Token, entry)
	return nil
}

func (r *MemoryTokenStore) GetSession(ctx context.Context, token string) (*models.Session, error) {
	val, ok := r.sessions.Load(token)
	if !ok {
		return nil, domain.ErrNotFound
	}
	entry := val.(memorySession)
	if !entry.expiresAt.IsZero() && r.now().After(entry.expiresAt) {
		r.sessions.Delete(token)
		return nil, domain.ErrNotFound
	}
	session := entry.session
	return &session, nil
}

func (r *MemoryTokenStore) DeleteSession(ctx context.Context, token string) error {
	r.sessions.Delete(token)
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

// CheckRateLimit counts attempts for key within window and reports whether
// the attempt is still within limit.
func (r *MemoryTokenStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := r.now()
	val, ok := r.rateLimits.Load(key)

	var entry *rateLimitEntry
	if !ok {
		entry = &rateLimitEntry{count: 1, expiresAt: now.Add(window)}
	} else {
		entry = val.(*rateLimitEntry)
		if now.After(entry.expiresAt) {
			entry.count = 1
			entry.expiresAt = now.Add(window)
		} else {
			entry.count++
		}
	}

	r.rateLimits.Store(key, entry)
	return entry.count <= limit, nil
}

type memoryUser struct {
	user models.User
	hash string
}

// MemoryUserDirectory stores auth accounts in memory. Emails are unique
// case-insensitively.
type MemoryUserDirectory struct {
	mu      sync.RWMutex
	byEmail map[string]memoryUser
}

func NewMemoryUserDirectory() *MemoryUserDirectory {
	return &MemoryUserDirectory{byEmail: make(map[string]memoryUser)}
}

func (d *MemoryUserDirectory) CreateUser(ctx context.Context, email, passwordHash string) (*models.User, error) {
	key := strings.ToLower(strings.TrimSpace(email))
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.byEmail[key]; exists {
		return nil, fmt.Errorf("user %s: %w", email, domain.ErrAlreadyExists)
	}
	u := models.User{ID: uuid.NewString(), Email: strings.TrimSpace(email), CreatedAt: time.Now().UTC()}
	d.byEmail[key] = memoryUser{user: u, hash: passwordHash}
	return &u, nil
}

func (d *MemoryUserDirectory) GetUserByEmail(ctx context.Context, email string) (*models.User, string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	entry, ok := d.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, "", domain.ErrNotFound
	}
	u := entry.user
	return &u, entry.hash, nil
}

func (d *MemoryUserDirectory) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, entry := range d.byEmail {
		if entry.user.ID == id {
			u := entry.user
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

type limitedTokenStore struct {
	domain.TokenStore
	limits *MemoryTokenStore
}

func (s limitedTokenStore) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return s.limits.CheckRateLimit(ctx, key, limit, window)
}

// WithMemoryRateLimit adds in-process sign-in throttling to a token store
// that has none of its own.
func WithMemoryRateLimit(tokens domain.TokenStore) SessionStore {
	return limitedTokenStore{TokenStore: tokens, limits: NewMemoryTokenStore()}
}
