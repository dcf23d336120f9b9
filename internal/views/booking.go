package views

import (
	"context"
	"errors"
	"sync"
	"time"

	"tattoostudio/internal/appointments"
	"tattoostudio/internal/models"

	"github.com/rs/zerolog"
)

// SubmitErrorMessage stays visible until the next submission.
const SubmitErrorMessage = "Erro ao enviar agendamento. Tente novamente."

var (
	// ErrSubmitInFlight rejects a submission while another one is running.
	ErrSubmitInFlight = errors.New("submission already in progress")
	// ErrSubmitFailed means the backend did not store the appointment.
	ErrSubmitFailed = errors.New("submission failed")
)

// BookingForm is the public booking request form.
type BookingForm struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Description string `json:"description"`
}

// Validate checks the form against the booking window starting at today.
func (f BookingForm) Validate(today time.Time, windowMonths int) error {
	var r fieldRules

	if r.required(models.FieldName, f.Name, "Nome é obrigatório") {
		r.minLength(models.FieldName, f.Name, 2, "Nome deve ter pelo menos 2 caracteres")
	}
	if r.required(models.FieldEmail, f.Email, "E-mail é obrigatório") {
		r.email(models.FieldEmail, f.Email, "E-mail inválido")
	}
	if r.required(models.FieldPhone, f.Phone, "Telefone é obrigatório") {
		r.minLength(models.FieldPhone, f.Phone, 10, "Telefone inválido")
	}
	if r.required(models.FieldDate, f.Date, "Data é obrigatória") {
		minDate := today.Format(models.DateLayout)
		maxDate := today.AddDate(0, windowMonths, 0).Format(models.DateLayout)
		if _, err := time.Parse(models.DateLayout, f.Date); err != nil {
			r.set(models.FieldDate, "Data inválida")
		} else if f.Date < minDate || f.Date > maxDate {
			r.set(models.FieldDate, "Data fora do período de agendamento")
		}
	}
	if r.required(models.FieldTime, f.Time, "Horário é obrigatório") && !models.IsTimeSlot(f.Time) {
		r.set(models.FieldTime, "Horário inválido")
	}
	if r.required(models.FieldDescription, f.Description, "Descrição é obrigatória") {
		r.minLength(models.FieldDescription, f.Description, 20, "Descrição deve ter pelo menos 20 caracteres")
	}

	return r.err()
}

func (f BookingForm) appointment() models.Appointment {
	return models.Appointment{
		Name:        f.Name,
		Email:       f.Email,
		Phone:       f.Phone,
		Date:        f.Date,
		Time:        f.Time,
		Description: f.Description,
	}
}

// BookingState is what the booking page shows.
type BookingState struct {
	Form        BookingForm
	FieldErrors map[string]string
	Submitting  bool
	Success     bool
	Error       string
}

type stopper interface {
	Stop() bool
}

// BookingView turns a form into a single appointment create.
type BookingView struct {
	hook   *appointments.Hook
	logger *zerolog.Logger

	now          func() time.Time
	afterFunc    func(d time.Duration, f func()) stopper
	windowMonths int
	bannerFor    time.Duration

	mu          sync.Mutex
	form        BookingForm
	fieldErrors map[string]string
	submitting  bool
	success     bool
	submitErr   string
	bannerTimer stopper
	bannerSeq   int
}

// BookingOption tweaks a BookingView.
type BookingOption func(*BookingView)

// WithBookingWindow sets how many months ahead dates are accepted.
func WithBookingWindow(months int) BookingOption {
	return func(v *BookingView) {
		if months > 0 {
			v.windowMonths = months
		}
	}
}

// WithBannerDuration sets how long the success banner stays up.
func WithBannerDuration(d time.Duration) BookingOption {
	return func(v *BookingView) {
		if d > 0 {
			v.bannerFor = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) BookingOption {
	return func(v *BookingView) { v.now = now }
}

func NewBookingView(hook *appointments.Hook, logger *zerolog.Logger, opts ...BookingOption) *BookingView {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	v := &BookingView{
		hook:         hook,
		logger:       logger,
		now:          time.Now,
		windowMonths: models.DefaultBookingWindowMonths,
		bannerFor:    models.SuccessBannerSeconds * time.Second,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// SetForm replaces the draft.
func (v *BookingView) SetForm(f BookingForm) {
	v.mu.Lock()
	v.form = f
	v.mu.Unlock()
}

// State returns a snapshot of the page.
func (v *BookingView) State() BookingState {
	v.mu.Lock()
	defer v.mu.Unlock()
	var fieldErrors map[string]string
	if len(v.fieldErrors) > 0 {
		fieldErrors = make(map[string]string, len(v.fieldErrors))
		for k, msg := range v.fieldErrors {
			fieldErrors[k] = msg
		}
	}
	return BookingState{
		Form:        v.form,
		FieldErrors: fieldErrors,
		Submitting:  v.submitting,
		Success:     v.success,
		Error:       v.submitErr,
	}
}

// Submit validates the draft and creates the appointment. On success the
// draft is cleared and the success banner is shown for a few seconds; on
// failure the draft is kept and SubmitErrorMessage is shown.
func (v *BookingView) Submit(ctx context.Context) (string, error) {
	v.mu.Lock()
	if v.submitting {
		v.mu.Unlock()
		return "", ErrSubmitInFlight
	}
	form := v.form
	if err := form.Validate(v.now(), v.windowMonths); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			v.fieldErrors = verr.Fields
		}
		v.mu.Unlock()
		return "", err
	}
	v.fieldErrors = nil
	v.submitting = true
	v.submitErr = ""
	v.mu.Unlock()

	id, ok := v.hook.Create(ctx, form.appointment())

	v.mu.Lock()
	defer v.mu.Unlock()
	v.submitting = false
	if !ok {
		v.submitErr = SubmitErrorMessage
		v.logger.Error().Str("date", form.Date).Str("time", form.Time).Msg("Failed to submit booking")
		return "", ErrSubmitFailed
	}

	v.form = BookingForm{}
	v.showBannerLocked()
	return id, nil
}

func (v *BookingView) showBannerLocked() {
	if v.bannerTimer != nil {
		v.bannerTimer.Stop()
	}
	v.success = true
	v.bannerSeq++
	seq := v.bannerSeq
	v.bannerTimer = v.afterFunc(v.bannerFor, func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		if v.bannerSeq == seq {
			v.success = false
			v.bannerTimer = nil
		}
	})
}

// Close stops a pending banner timer.
func (v *BookingView) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.bannerTimer != nil {
		v.bannerTimer.Stop()
		v.bannerTimer = nil
	}
}
