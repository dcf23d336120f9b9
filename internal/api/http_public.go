package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"tattoostudio/internal/appointments"
	"tattoostudio/internal/authn"
	"tattoostudio/internal/models"
	"tattoostudio/internal/views"
)

func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if dateStr == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	if _, err := time.Parse(models.DateLayout, dateStr); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	slots, err := appointments.Slots(r.Context(), s.deps.Store, dateStr)
	if err != nil {
		s.log.Error().Err(err).Str("date", dateStr).Msg("list slots")
		writeError(w, http.StatusInternalServerError, "failed to list slots")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": dateStr, "slots": slots})
}

func (s *HTTPServer) handleCreateAppointment(w http.ResponseWriter, r *http.Request) {
	var form views.BookingForm
	if err := decodeJSON(w, r, &form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	view := views.NewBookingView(s.deps.Appointments, &s.log,
		views.WithBookingWindow(s.deps.Booking.WindowMonths),
		views.WithClock(s.deps.Now),
	)
	defer view.Close()
	view.SetForm(form)

	id, err := view.Submit(r.Context())
	var verr *views.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "invalid form", "fields": verr.Fields})
	case err != nil:
		writeError(w, http.StatusInternalServerError, views.SubmitErrorMessage)
	default:
		writeJSON(w, http.StatusCreated, map[string]any{"id": id, "status": models.StatusPending})
	}
}

func (s *HTTPServer) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		writeJSON(w, http.StatusOK, map[string]any{"works": []models.TattooWork{}})
		return
	}
	works, err := s.deps.Catalog.Works(r.URL.Query().Get("style"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"works": works})
}

func (s *HTTPServer) handleStudio(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Catalog == nil {
		writeError(w, http.StatusNotFound, "studio information is not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Catalog.Studio)
}

// tokenLogin adapts the auth backend to the login form for one request.
type tokenLogin struct {
	s       *HTTPServer
	session *models.Session
}

func (t *tokenLogin) SignIn(ctx context.Context, email, password string) error {
	session, err := t.s.deps.Auth.Authenticate(ctx, email, password)
	if err != nil {
		return err
	}
	t.session = session
	return nil
}

func (t *tokenLogin) User() *models.User {
	if t.session == nil {
		return nil
	}
	u := t.session.User
	return &u
}

func (t *tokenLogin) IsAdmin() bool {
	return t.session != nil && t.s.deps.Admins.Contains(t.session.User.Email)
}

func (t *tokenLogin) Loading() bool { return false }

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	login := &tokenLogin{s: s}
	view := views.NewLoginView(login, &s.log)
	err := view.Submit(r.Context(), body.Email, body.Password)

	var verr *views.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "invalid form", "fields": verr.Fields})
		return
	case err != nil:
		writeError(w, http.StatusUnauthorized, view.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":      login.session.Token,
		"expires_at": login.session.ExpiresAt,
		"user":       login.session.User,
		"is_admin":   login.IsAdmin(),
		"redirect":   view.Redirect(),
	})
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	if err := s.deps.Auth.Revoke(r.Context(), token); err != nil {
		s.log.Error().Str("code", authn.CodeOf(err)).Err(err).Msg("logout")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
