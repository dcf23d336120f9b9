package views

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"tattoostudio/internal/appointments"
	"tattoostudio/internal/models"

	"github.com/rs/zerolog"
)

// Phase is the admin panel's state.
type Phase string

const (
	// PhaseAuthPending shows the session placeholder: the first auth
	// notification has not arrived yet.
	PhaseAuthPending Phase = "auth_pending"
	PhaseRedirect    Phase = "redirect"
	PhaseLoading  Phase = "loading"
	PhaseReady    Phase = "ready"
)

// LoadingAppointmentsMessage is shown while the first fetch is in flight.
const LoadingAppointmentsMessage = "Carregando agendamentos..."

// StatusLabel is the display name of a status.
func StatusLabel(s models.Status) string {
	return s.Label()
}

// AdminView is the appointment management panel.
type AdminView struct {
	session Session
	hook    *appointments.Hook
	logger  *zerolog.Logger

	mu     sync.Mutex
	phase  Phase
	filter string
}

func NewAdminView(session Session, hook *appointments.Hook, logger *zerolog.Logger) *AdminView {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &AdminView{
		session: session,
		hook:    hook,
		logger:  logger,
		phase:   PhaseLoading,
		filter:  appointments.FilterAll,
	}
}

func (v *AdminView) authorized() bool {
	return v.session.User() != nil && v.session.IsAdmin()
}

// Open checks the session and fetches the appointments. While the session is
// still resolving it returns ErrSessionLoading; a visitor who is not a
// signed-in admin gets ErrRedirect. Neither fetches anything.
func (v *AdminView) Open(ctx context.Context) error {
	if v.session.Loading() {
		v.setPhase(PhaseAuthPending)
		return ErrSessionLoading
	}
	if !v.authorized() {
		v.setPhase(PhaseRedirect)
		return redirectTo(LoginPath)
	}

	v.setPhase(PhaseLoading)
	v.hook.Refresh(ctx)
	if msg := v.hook.State().Error; msg != "" {
		v.logger.Warn().Str("error", msg).Msg("Admin panel opened with a load error")
	}
	v.setPhase(PhaseReady)
	return nil
}

func (v *AdminView) setPhase(p Phase) {
	v.mu.Lock()
	v.phase = p
	v.mu.Unlock()
}

// Phase reports the panel state. It turns into PhaseRedirect as soon as the
// session stops being an admin one.
func (v *AdminView) Phase() Phase {
	if v.session.Loading() {
		return PhaseAuthPending
	}
	if !v.authorized() {
		return PhaseRedirect
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.phase
}

// Redirect is LoginPath while the panel must not be shown.
func (v *AdminView) Redirect() string {
	if v.Phase() == PhaseRedirect {
		return LoginPath
	}
	return ""
}

// SetFilter selects "all" or a status. No refetch happens.
func (v *AdminView) SetFilter(raw string) error {
	filter, err := appointments.ParseFilter(raw)
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.filter = filter
	v.mu.Unlock()
	return nil
}

func (v *AdminView) Filter() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.filter
}

// Visible is the cached list narrowed by the current filter, in fetch order.
func (v *AdminView) Visible() []models.Appointment {
	return appointments.Filter(v.hook.State().Items, v.Filter())
}

// All is the unfiltered cached list.
func (v *AdminView) All() []models.Appointment {
	return v.hook.State().Items
}

// EmptyMessage is shown when Visible is empty.
func (v *AdminView) EmptyMessage() string {
	filter := v.Filter()
	if filter == appointments.FilterAll {
		return "Nenhum agendamento encontrado."
	}
	return fmt.Sprintf("Nenhum agendamento %s encontrado.", strings.ToLower(StatusLabel(models.Status(filter))))
}

// Stats counts over the whole cache, ignoring the filter.
func (v *AdminView) Stats() models.Stats {
	return appointments.Stats(v.hook.State().Items)
}

// Error is the last data-access failure message, if any.
func (v *AdminView) Error() string {
	return v.hook.State().Error
}

func (v *AdminView) Approve(ctx context.Context, id string) error {
	return v.transition(ctx, id, models.StatusApproved)
}

func (v *AdminView) Reject(ctx context.Context, id string) error {
	return v.transition(ctx, id, models.StatusRejected)
}

func (v *AdminView) Complete(ctx context.Context, id string) error {
	return v.transition(ctx, id, models.StatusCompleted)
}

func (v *AdminView) transition(ctx context.Context, id string, to models.Status) error {
	if !v.authorized() {
		return redirectTo(LoginPath)
	}
	if err := v.hook.SetStatus(ctx, id, to); err != nil {
		v.logger.Error().Err(err).Str("appointment_id", id).Str("to", string(to)).Msg("Failed to update appointment")
		return err
	}
	return nil
}

// Logout ends the session. The panel then reports PhaseRedirect.
func (v *AdminView) Logout(ctx context.Context) error {
	if err := v.session.Logout(ctx); err != nil {
		v.logger.Error().Err(err).Msg("Failed to logout")
		return err
	}
	return nil
}
