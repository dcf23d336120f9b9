package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"tattoostudio/internal/appointments"
	"tattoostudio/internal/authn"
	"tattoostudio/internal/export"
	"tattoostudio/internal/models"
	"tattoostudio/internal/views"
)

type adminHandler func(w http.ResponseWriter, r *http.Request, view *views.AdminView)

// admin resolves the bearer token to a session and builds the request's
// admin panel. Visitors without an admin session get the login redirect.
func (s *HTTPServer) admin(next adminHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		var user *models.User
		if token != "" {
			sess, err := s.deps.Auth.Verify(r.Context(), token)
			if err != nil && authn.CodeOf(err) == authn.CodeInternal {
				s.log.Error().Err(err).Msg("verify session")
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			if err == nil {
				u := sess.User
				user = &u
			}
		}

		guard := views.NewStaticSession(user, user != nil && s.deps.Admins.Contains(user.Email), func(ctx context.Context) error {
			return s.deps.Auth.Revoke(ctx, token)
		})
		view := views.NewAdminView(guard, s.deps.Appointments, &s.log)

		if view.Redirect() != "" {
			code := http.StatusUnauthorized
			if user != nil {
				code = http.StatusForbidden
			}
			writeJSON(w, code, map[string]string{"error": "acesso restrito a administradores", "redirect": view.Redirect()})
			return
		}

		next(w, r, view)
	}
}

func (s *HTTPServer) handleAdminList(w http.ResponseWriter, r *http.Request, view *views.AdminView) {
	if err := view.SetFilter(r.URL.Query().Get("status")); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := view.Open(r.Context()); err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}

	visible := view.Visible()
	resp := map[string]any{
		"filter":       view.Filter(),
		"appointments": visible,
		"stats":        view.Stats(),
	}
	if len(visible) == 0 {
		resp["empty_message"] = view.EmptyMessage()
	}
	if msg := view.Error(); msg != "" {
		resp["error"] = msg
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleAdminTransition(w http.ResponseWriter, r *http.Request, view *views.AdminView) {
	id := r.PathValue("id")

	var act func(context.Context, string) error
	switch r.PathValue("action") {
	case "approve":
		act = view.Approve
	case "reject":
		act = view.Reject
	case "complete":
		act = view.Complete
	default:
		writeError(w, http.StatusNotFound, "unknown action")
		return
	}

	err := act(r.Context(), id)
	switch {
	case err == nil:
	case errors.Is(err, appointments.ErrUnknownAppointment):
		writeError(w, http.StatusNotFound, "agendamento não encontrado")
		return
	case errors.Is(err, appointments.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, views.ErrRedirect):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error(), "redirect": views.LoginPath})
		return
	default:
		writeError(w, http.StatusInternalServerError, view.Error())
		return
	}

	updated, _ := s.deps.Appointments.Get(id)
	writeJSON(w, http.StatusOK, updated)
}

func (s *HTTPServer) handleAdminExport(w http.ResponseWriter, r *http.Request, view *views.AdminView) {
	if err := view.SetFilter(r.URL.Query().Get("status")); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := view.Open(r.Context()); err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	if msg := view.Error(); msg != "" {
		writeError(w, http.StatusInternalServerError, msg)
		return
	}

	now := s.deps.Now()
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="agendamentos_%s.xlsx"`, now.Format("20060102")))
	if err := export.Write(w, view.Visible(), now); err != nil {
		s.log.Error().Err(err).Msg("export appointments")
	}
}
