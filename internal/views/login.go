package views

import (
	"context"
	"errors"
	"sync"

	"tattoostudio/internal/models"

	"github.com/rs/zerolog"
)

// LoginErrorMessage replaces every sign-in failure.
const LoginErrorMessage = "Email ou senha incorretos. Tente novamente."

// ErrLoginFailed is returned when the credentials were refused.
var ErrLoginFailed = errors.New("login failed")

// LoginView is the admin sign-in form.
type LoginView struct {
	auth   Authenticator
	logger *zerolog.Logger

	mu          sync.Mutex
	submitting  bool
	loginErr    string
	fieldErrors map[string]string
}

func NewLoginView(auth Authenticator, logger *zerolog.Logger) *LoginView {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &LoginView{auth: auth, logger: logger}
}

// ValidateLogin checks the credentials before any backend call.
func ValidateLogin(email, password string) error {
	var r fieldRules
	if r.required(models.FieldEmail, email, "E-mail é obrigatório") {
		r.email(models.FieldEmail, email, "E-mail inválido")
	}
	if r.required("password", password, "Senha é obrigatória") {
		r.minLength("password", password, 6, "Senha deve ter pelo menos 6 caracteres")
	}
	return r.err()
}

// Submit signs in. The session itself is only changed by the auth
// notification that follows a successful sign-in.
func (v *LoginView) Submit(ctx context.Context, email, password string) error {
	if err := ValidateLogin(email, password); err != nil {
		var verr *ValidationError
		v.mu.Lock()
		if errors.As(err, &verr) {
			v.fieldErrors = verr.Fields
		}
		v.mu.Unlock()
		return err
	}

	v.mu.Lock()
	if v.submitting {
		v.mu.Unlock()
		return ErrSubmitInFlight
	}
	v.submitting = true
	v.loginErr = ""
	v.fieldErrors = nil
	v.mu.Unlock()

	err := v.auth.SignIn(ctx, email, password)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.submitting = false
	if err != nil {
		v.logger.Info().Err(err).Msg("Login error")
		v.loginErr = LoginErrorMessage
		return ErrLoginFailed
	}
	return nil
}

// Error is the inline error under the form.
func (v *LoginView) Error() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loginErr
}

// FieldErrors are the messages of the last failed validation.
func (v *LoginView) FieldErrors() map[string]string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]string, len(v.fieldErrors))
	for k, msg := range v.fieldErrors {
		out[k] = msg
	}
	return out
}

// Redirect is AdminPath once an admin is signed in, "" otherwise.
func (v *LoginView) Redirect() string {
	if !v.auth.Loading() && v.auth.User() != nil && v.auth.IsAdmin() {
		return AdminPath
	}
	return ""
}
