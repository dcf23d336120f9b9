// Package session holds the application-wide authentication state.
package session

import (
	"context"
	"errors"
	"sync"

	"tattoostudio/internal/authn"
	"tattoostudio/internal/domain"
	"tattoostudio/internal/models"

	"github.com/rs/zerolog"
)

// LoadingPlaceholder is shown instead of any auth-dependent content until
// the first notification arrives.
const LoadingPlaceholder = "Carregando..."

// ErrAlreadyStarted is returned by a second Start.
var ErrAlreadyStarted = errors.New("session manager already started")

// State is a snapshot of the session.
type State struct {
	User    *models.User
	Loading bool
	IsAdmin bool
}

// Manager subscribes to the auth client and exposes the current user, the
// loading flag and the derived admin flag. Construct it once at startup and
// pass it to every consumer.
type Manager struct {
	auth   domain.AuthClient
	admins AllowList
	logger *zerolog.Logger

	mu          sync.RWMutex
	user        *models.User
	loading     bool
	started     bool
	unsubscribe func()

	changes   chan State
	ready     chan struct{}
	readyOnce sync.Once
	stopOnce  sync.Once
}

func NewManager(auth domain.AuthClient, admins AllowList, logger *zerolog.Logger) *Manager {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &Manager{
		auth:    auth,
		admins:  admins,
		logger:  logger,
		loading: true,
		changes: make(chan State, 1),
		ready:   make(chan struct{}),
	}
}

// Start subscribes to auth-state changes.
func (m *Manager) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	unsubscribe := m.auth.OnAuthStateChanged(m.onAuthStateChanged)

	m.mu.Lock()
	m.unsubscribe = unsubscribe
	m.mu.Unlock()
	return nil
}

// Stop ends the subscription. Safe to call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		unsubscribe := m.unsubscribe
		m.unsubscribe = nil
		m.mu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}
	})
}

func (m *Manager) onAuthStateChanged(user *models.User) {
	m.mu.Lock()
	m.user = user
	m.loading = false
	state := m.stateLocked()
	m.mu.Unlock()

	if user != nil {
		m.logger.Debug().Str("user_id", user.ID).Bool("is_admin", state.IsAdmin).Msg("Session changed")
	} else {
		m.logger.Debug().Msg("Session cleared")
	}

	m.readyOnce.Do(func() { close(m.ready) })

	// Keep only the latest state for slow readers.
	select {
	case <-m.changes:
	default:
	}
	select {
	case m.changes <- state:
	default:
	}
}

func (m *Manager) stateLocked() State {
	var user *models.User
	if m.user != nil {
		u := *m.user
		user = &u
	}
	return State{
		User:    user,
		Loading: m.loading,
		IsAdmin: user != nil && m.admins.Contains(user.Email),
	}
}

// State returns the current snapshot.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stateLocked()
}

// User is the signed-in user or nil.
func (m *Manager) User() *models.User {
	return m.State().User
}

// Loading is true until the first auth notification.
func (m *Manager) Loading() bool {
	return m.State().Loading
}

// IsAdmin reports whether the signed-in user is on the allow-list.
func (m *Manager) IsAdmin() bool {
	return m.State().IsAdmin
}

// Admins returns the allow-list in use.
func (m *Manager) Admins() AllowList {
	return m.admins
}

// Changes delivers state snapshots. Only the latest undelivered snapshot is kept.
func (m *Manager) Changes() <-chan State {
	return m.changes
}

// WaitReady blocks until the first notification or ctx is done.
func (m *Manager) WaitReady(ctx context.Context) error {
	select {
	case <-m.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SignIn delegates to the auth client. The session state changes only
// through the resulting notification.
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	if err := m.auth.SignIn(ctx, email, password); err != nil {
		return normalize(err)
	}
	return nil
}

// Logout signs the current user out.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.auth.SignOut(ctx); err != nil {
		return normalize(err)
	}
	return nil
}

// normalize reduces backend errors to a plain error with the backend message.
func normalize(err error) error {
	var authErr *authn.Error
	if errors.As(err, &authErr) {
		return errors.New(authErr.Message)
	}
	return errors.New(err.Error())
}
