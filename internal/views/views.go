// Package views holds the screen-level state machines of the studio: the
// admin panel, the public booking form and the login form. They carry no
// rendering; the HTTP API and studioctl drive them.
package views

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"tattoostudio/internal/models"
)

const (
	LoginPath = "/login"
	AdminPath = "/admin"
)

// ErrRedirect is returned when the caller must be sent elsewhere, usually
// to LoginPath because the session is not an admin one.
var ErrRedirect = errors.New("redirect")

// ErrSessionLoading is returned while the session has not resolved yet; the
// caller shows the loading placeholder and tries again.
var ErrSessionLoading = errors.New("session loading")

func redirectTo(path string) error {
	return fmt.Errorf("%w to %s", ErrRedirect, path)
}

// Guard is the read side of the session the views depend on.
type Guard interface {
	User() *models.User
	IsAdmin() bool
	Loading() bool
}

// Session is a Guard that can also end itself.
type Session interface {
	Guard
	Logout(ctx context.Context) error
}

// Authenticator is what the login form needs from the session.
type Authenticator interface {
	Guard
	SignIn(ctx context.Context, email, password string) error
}

// StaticSession is a Guard fixed at construction, used for request-scoped
// views where the session was already verified from a token.
type StaticSession struct {
	user   *models.User
	admin  bool
	revoke func(ctx context.Context) error
}

// NewStaticSession builds a resolved session. revoke may be nil.
func NewStaticSession(user *models.User, admin bool, revoke func(ctx context.Context) error) *StaticSession {
	return &StaticSession{user: user, admin: admin && user != nil, revoke: revoke}
}

func (s *StaticSession) User() *models.User { return s.user }
func (s *StaticSession) IsAdmin() bool      { return s.admin }
func (s *StaticSession) Loading() bool      { return false }

func (s *StaticSession) Logout(ctx context.Context) error {
	s.user = nil
	s.admin = false
	if s.revoke == nil {
		return nil
	}
	return s.revoke(ctx)
}

// ValidationError carries field-level messages. No backend call is made
// when a form fails validation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "invalid fields: " + strings.Join(keys, ", ")
}

var emailPattern = regexp.MustCompile(`(?i)^\S+@\S+$`)

type fieldRules struct {
	errs map[string]string
}

func (r *fieldRules) required(field, value, msg string) bool {
	if strings.TrimSpace(value) == "" {
		r.set(field, msg)
		return false
	}
	return true
}

func (r *fieldRules) minLength(field, value string, n int, msg string) {
	if utf8.RuneCountInString(value) < n {
		r.set(field, msg)
	}
}

func (r *fieldRules) email(field, value, msg string) {
	if !emailPattern.MatchString(value) {
		r.set(field, msg)
	}
}

func (r *fieldRules) set(field, msg string) {
	if r.errs == nil {
		r.errs = make(map[string]string)
	}
	if _, ok := r.errs[field]; !ok {
		r.errs[field] = msg
	}
}

func (r *fieldRules) err() error {
	if len(r.errs) == 0 {
		return nil
	}
	return &ValidationError{Fields: r.errs}
}
