package authn

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"tattoostudio/internal/domain"
	"tattoostudio/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const (
	// MinPasswordLength mirrors the login form rule.
	MinPasswordLength = 6

	signInAttempts = 10
	signInWindow   = 15 * time.Minute
)

// RateLimiter throttles sign-in attempts per key.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Backend is the email/password auth service: it verifies credentials and
// issues opaque session tokens.
type Backend struct {
	users   domain.UserDirectory
	tokens  domain.TokenStore
	limiter RateLimiter
	ttl     time.Duration
	cost    int
	logger  *zerolog.Logger
	now     func() time.Time
}

func NewBackend(users domain.UserDirectory, tokens domain.TokenStore, ttl time.Duration, logger *zerolog.Logger) *Backend {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	b := &Backend{users: users, tokens: tokens, ttl: ttl, cost: bcrypt.DefaultCost, logger: logger, now: time.Now}
	if limiter, ok := tokens.(RateLimiter); ok {
		b.limiter = limiter
	}
	return b
}

// SetCost changes the bcrypt cost used for new password hashes.
func (b *Backend) SetCost(cost int) {
	b.cost = cost
}

func hashPassword(raw string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func verifyPassword(hash, raw string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw))
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// CreateUser registers an account.
func (b *Backend) CreateUser(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, newError(CodeInvalidCredential, "Email obrigatório.", nil)
	}
	if len(password) < MinPasswordLength {
		return nil, newError(CodeWeakPassword, "A senha deve ter pelo menos 6 caracteres.", nil)
	}

	hash, err := hashPassword(password, b.cost)
	if err != nil {
		return nil, newError(CodeInternal, "Erro interno de autenticação.", err)
	}

	user, err := b.users.CreateUser(ctx, email, hash)
	if errors.Is(err, domain.ErrAlreadyExists) {
		return nil, newError(CodeEmailInUse, "Este email já está em uso.", err)
	}
	if err != nil {
		return nil, newError(CodeInternal, "Erro interno de autenticação.", err)
	}

	b.logger.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("User created")
	return user, nil
}

// Authenticate checks credentials and issues a session.
func (b *Backend) Authenticate(ctx context.Context, email, password string) (*models.Session, error) {
	email = strings.TrimSpace(email)
	invalid := newError(CodeInvalidCredential, "Credenciais inválidas.", nil)

	if b.limiter != nil {
		allowed, err := b.limiter.CheckRateLimit(ctx, strings.ToLower(email), signInAttempts, signInWindow)
		if err != nil {
			b.logger.Warn().Err(err).Msg("Sign-in rate limit check failed")
		} else if !allowed {
			return nil, newError(CodeTooManyRequests, "Muitas tentativas. Tente novamente mais tarde.", nil)
		}
	}

	user, hash, err := b.users.GetUserByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, invalid
	}
	if err != nil {
		return nil, newError(CodeInternal, "Erro interno de autenticação.", err)
	}
	if err := verifyPassword(hash, password); err != nil {
		b.logger.Debug().Str("user_id", user.ID).Msg("Password mismatch")
		return nil, invalid
	}

	token, err := newToken()
	if err != nil {
		return nil, newError(CodeInternal, "Erro interno de autenticação.", err)
	}
	session := &models.Session{Token: token, User: *user}
	if b.ttl > 0 {
		session.ExpiresAt = b.now().Add(b.ttl).UTC()
	}
	if err := b.tokens.SaveSession(ctx, session, b.ttl); err != nil {
		return nil, newError(CodeInternal, "Erro interno de autenticação.", err)
	}

	b.logger.Info().Str("user_id", user.ID).Msg("User signed in")
	return session, nil
}

// Verify resolves a token to its session.
func (b *Backend) Verify(ctx context.Context, token string) (*models.Session, error) {
	if token == "" {
		return nil, newError(CodeInvalidToken, "Sessão inválida.", nil)
	}
	session, err := b.tokens.GetSession(ctx, token)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, newError(CodeInvalidToken, "Sessão inválida.", err)
	}
	if err != nil {
		return nil, newError(CodeInternal, "Erro interno de autenticação.", err)
	}
	if session.Expired(b.now()) {
		_ = b.tokens.DeleteSession(ctx, token)
		return nil, newError(CodeInvalidToken, "Sessão expirada.", nil)
	}
	return session, nil
}

// Revoke ends a session. Unknown tokens are not an error.
func (b *Backend) Revoke(ctx context.Context, token string) error {
	if err := b.tokens.DeleteSession(ctx, token); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return newError(CodeInternal, "Erro interno de autenticação.", fmt.Errorf("revoke session: %w", err))
	}
	return nil
}
