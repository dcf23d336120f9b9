package authn

import (
	"context"
	"sync"

	"tattoostudio/internal/models"

	"github.com/rs/zerolog"
)

// Client is the per-application auth instance. It owns the current session
// and notifies listeners when it changes.
//
// Listeners are called synchronously and one at a time, in the order the
// changes happened. A listener must not call SignIn or SignOut itself.
type Client struct {
	backend     *Backend
	persistence Persistence
	logger      *zerolog.Logger

	mu          sync.Mutex
	user        *models.User
	token       string
	initialized bool
	listeners   map[int64]func(*models.User)
	nextID      int64

	deliverMu sync.Mutex
}

func NewClient(backend *Backend, persistence Persistence, logger *zerolog.Logger) *Client {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &Client{
		backend:     backend,
		persistence: persistence,
		logger:      logger,
		listeners:   make(map[int64]func(*models.User)),
	}
}

// Start restores a persisted session, marks the client initialised and
// delivers the resulting state to every listener.
func (c *Client) Start(ctx context.Context) {
	var restored *models.Session
	if c.persistence != nil {
		token, err := c.persistence.Load()
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to load persisted session")
		}
		if token != "" {
			session, err := c.backend.Verify(ctx, token)
			if err != nil {
				c.logger.Info().Str("code", CodeOf(err)).Msg("Persisted session is no longer valid")
				_ = c.persistence.Clear()
			} else {
				restored = session
			}
		}
	}

	c.apply(func() {
		c.initialized = true
		if restored != nil {
			user := restored.User
			c.user = &user
			c.token = restored.Token
		}
	})
}

// apply mutates state and notifies listeners as one serialized step.
func (c *Client) apply(mutate func()) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.mu.Lock()
	mutate()
	if !c.initialized {
		c.mu.Unlock()
		return
	}
	user := copyUser(c.user)
	listeners := make([]func(*models.User), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(copyUser(user))
	}
}

func copyUser(u *models.User) *models.User {
	if u == nil {
		return nil
	}
	out := *u
	return &out
}

// OnAuthStateChanged registers fn. If the client has already initialised,
// fn immediately receives the current user (nil when signed out).
func (c *Client) OnAuthStateChanged(fn func(user *models.User)) func() {
	c.deliverMu.Lock()
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners[id] = fn
	initialized := c.initialized
	user := copyUser(c.user)
	c.mu.Unlock()
	if initialized {
		fn(user)
	}
	c.deliverMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// SignIn authenticates and makes the new session current.
func (c *Client) SignIn(ctx context.Context, email, password string) error {
	session, err := c.backend.Authenticate(ctx, email, password)
	if err != nil {
		return err
	}
	if c.persistence != nil {
		if err := c.persistence.Save(session.Token); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to persist session")
		}
	}
	c.apply(func() {
		user := session.User
		c.user = &user
		c.token = session.Token
	})
	return nil
}

// SignOut revokes the current session. The local session is cleared even
// when revocation fails.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	var revokeErr error
	if token != "" {
		revokeErr = c.backend.Revoke(ctx, token)
	}
	if c.persistence != nil {
		if err := c.persistence.Clear(); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to clear persisted session")
		}
	}
	c.apply(func() {
		c.user = nil
		c.token = ""
	})
	return revokeErr
}

// CurrentUser returns the signed-in user or nil.
func (c *Client) CurrentUser() *models.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyUser(c.user)
}

// Token returns the current session token or "".
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}
