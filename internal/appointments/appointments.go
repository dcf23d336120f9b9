// Package appointments specialises the collection hook for booking requests
// and owns the status workflow.
package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tattoostudio/internal/collection"
	"tattoostudio/internal/domain"
	"tattoostudio/internal/events"
	"tattoostudio/internal/metrics"
	"tattoostudio/internal/models"

	"github.com/rs/zerolog"
)

var (
	// ErrInvalidTransition rejects status changes outside the workflow.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrUnknownAppointment is returned for ids missing from the cache.
	ErrUnknownAppointment = errors.New("appointment not found")
	// ErrUpdateFailed means the backend refused the change; the hook error holds the message.
	ErrUpdateFailed = errors.New("appointment update failed")
)

// FilterAll is the pseudo-status that matches every appointment.
const FilterAll = "all"

// Messages are the appointment-specific user-facing errors.
var Messages = collection.Messages{
	List:   "Erro ao carregar agendamentos",
	Add:    "Erro ao adicionar agendamento",
	Update: "Erro ao atualizar agendamento",
	Remove: "Erro ao deletar agendamento",
}

var transitions = map[models.Status][]models.Status{
	models.StatusPending:  {models.StatusApproved, models.StatusRejected},
	models.StatusApproved: {models.StatusCompleted},
}

// CanTransition reports whether from→to is part of the workflow.
func CanTransition(from, to models.Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Hook is the appointments collection ordered newest first.
type Hook struct {
	*collection.Hook[models.Appointment]

	publisher domain.EventPublisher
	logger    *zerolog.Logger
	now       func() time.Time
}

// NewHook builds the hook; publisher may be nil.
func NewHook(store domain.DocumentStore, publisher domain.EventPublisher, logger *zerolog.Logger) *Hook {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	inner := collection.New[models.Appointment](store, models.AppointmentFromDocument, collection.Options{
		Collection: models.CollectionAppointments,
		OrderBy:    models.FieldCreatedAt,
		Direction:  models.Desc,
	}, logger).WithMessages(Messages)

	return &Hook{Hook: inner, publisher: publisher, logger: logger, now: time.Now}
}

// Create submits a new booking request. Status is forced to pending and
// CreatedAt is stamped when unset.
func (h *Hook) Create(ctx context.Context, a models.Appointment) (string, bool) {
	a.ID = ""
	a.Status = models.StatusPending
	if a.CreatedAt.IsZero() {
		a.CreatedAt = h.now().UTC()
	}

	id, ok := h.Add(ctx, a)
	if !ok {
		return "", false
	}
	metrics.IncAppointmentCreated()
	h.logger.Info().Str("appointment_id", id).Str("date", a.Date).Str("time", a.Time).Msg("Appointment created")
	h.publish(events.EventAppointmentCreated, payload(a.WithID(id), ""))
	return id, true
}

// SetStatus moves an appointment along the workflow. The transition is
// checked against a fresh list, since other hooks on the same store may have
// moved it; when that list fails the cached record is used.
func (h *Hook) SetStatus(ctx context.Context, id string, to models.Status) error {
	h.Refresh(ctx)
	current, ok := h.Get(id)
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrUnknownAppointment)
	}
	if !CanTransition(current.Status, to) {
		return fmt.Errorf("%s → %s: %w", current.Status, to, ErrInvalidTransition)
	}

	if !h.Update(ctx, id, models.Fields{models.FieldStatus: string(to)}) {
		return fmt.Errorf("%s: %w", id, ErrUpdateFailed)
	}

	metrics.IncAppointmentTransition(string(to))
	h.logger.Info().Str("appointment_id", id).Str("from", string(current.Status)).Str("to", string(to)).Msg("Appointment status changed")
	updated, _ := h.Get(id)
	h.publish(events.EventAppointmentStatusChanged, payload(updated, current.Status))
	return nil
}

func (h *Hook) publish(eventType string, p events.AppointmentEventPayload) {
	if h.publisher == nil {
		return
	}
	if err := h.publisher.PublishJSON(eventType, p); err != nil {
		h.logger.Warn().Err(err).Str("event", eventType).Msg("Failed to publish event")
	}
}

func payload(a models.Appointment, previous models.Status) events.AppointmentEventPayload {
	return events.AppointmentEventPayload{
		AppointmentID: a.ID,
		Name:          a.Name,
		Email:         a.Email,
		Phone:         a.Phone,
		Date:          a.Date,
		Time:          a.Time,
		Description:   a.Description,
		Status:        string(a.Status),
		PreviousState: string(previous),
		CreatedAt:     a.CreatedAt,
	}
}

// ParseFilter accepts "all" or a status.
func ParseFilter(raw string) (string, error) {
	if raw == "" || raw == FilterAll {
		return FilterAll, nil
	}
	if _, err := models.ParseStatus(raw); err != nil {
		return "", err
	}
	return raw, nil
}

// Filter keeps the appointments whose status equals filter; "all" keeps every one.
func Filter(items []models.Appointment, filter string) []models.Appointment {
	out := make([]models.Appointment, 0, len(items))
	for _, a := range items {
		if filter == FilterAll || filter == "" || string(a.Status) == filter {
			out = append(out, a)
		}
	}
	return out
}

// Stats counts appointments per status. Rejected ones only count in Total.
func Stats(items []models.Appointment) models.Stats {
	s := models.Stats{Total: len(items)}
	for _, a := range items {
		switch a.Status {
		case models.StatusPending:
			s.Pending++
		case models.StatusApproved:
			s.Approved++
		case models.StatusCompleted:
			s.Completed++
		}
	}
	return s
}
