// Package notify sends Telegram messages about pending appointments.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tattoostudio/internal/appointments"
	"tattoostudio/internal/collection"
	"tattoostudio/internal/domain"
	"tattoostudio/internal/metrics"
	"tattoostudio/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	KindNewAppointment = "new_appointment"
	KindDigest         = "digest"
)

// Notifier follows the pending appointments and reports new ones to the
// configured chats. Appointments already pending when it starts are only
// reported by the digest.
type Notifier struct {
	sender   domain.TelegramSender
	chatIDs  []int64
	pending  *appointments.Hook
	schedule string
	logger   *zerolog.Logger
	now      func() time.Time

	mu     sync.Mutex
	seen   map[string]struct{}
	primed bool
}

func New(sender domain.TelegramSender, chatIDs []int64, store domain.DocumentStore, schedule string, logger *zerolog.Logger) *Notifier {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	if schedule == "" {
		schedule = models.DefaultDigestSchedule
	}
	return &Notifier{
		sender:   sender,
		chatIDs:  append([]int64(nil), chatIDs...),
		pending:  appointments.NewHook(store, nil, logger),
		schedule: schedule,
		logger:   logger,
		now:      time.Now,
		seen:     make(map[string]struct{}),
	}
}

// Run watches pending appointments and runs the digest schedule until ctx is done.
func (n *Notifier) Run(ctx context.Context) error {
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(n.schedule, n.SendDigest); err != nil {
		return fmt.Errorf("invalid digest schedule %q: %w", n.schedule, err)
	}

	n.pending.OnChange(n.onSnapshot)
	stop, err := n.pending.Live(ctx, models.Where(models.FieldStatus, string(models.StatusPending)))
	if err != nil {
		return err
	}
	defer stop()

	scheduler.Start()
	n.logger.Info().Str("schedule", n.schedule).Int("chats", len(n.chatIDs)).Msg("Notifier started")

	<-ctx.Done()
	<-scheduler.Stop().Done()
	n.logger.Info().Msg("Notifier stopped")
	return nil
}

func (n *Notifier) onSnapshot(state collection.State[models.Appointment]) {
	if state.Loading || state.Error != "" {
		return
	}

	n.mu.Lock()
	current := make(map[string]struct{}, len(state.Items))
	var fresh []models.Appointment
	for _, a := range state.Items {
		current[a.ID] = struct{}{}
		if _, ok := n.seen[a.ID]; !ok && n.primed {
			fresh = append(fresh, a)
		}
	}
	n.seen = current
	n.primed = true
	n.mu.Unlock()

	// Snapshots are newest first; announce in arrival order.
	for i := len(fresh) - 1; i >= 0; i-- {
		n.broadcast(KindNewAppointment, FormatNewAppointment(fresh[i]), ActionKeyboard(fresh[i]))
	}
}

// SendDigest reports every pending appointment in one message.
func (n *Notifier) SendDigest() {
	state := n.pending.State()
	if state.Loading || state.Error != "" {
		n.logger.Warn().Str("error", state.Error).Msg("Skipping digest, pending list unavailable")
		return
	}
	n.broadcast(KindDigest, FormatDigest(state.Items, n.now()), nil)
}

func (n *Notifier) broadcast(kind, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	for _, chatID := range n.chatIDs {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.DisableWebPagePreview = true
		if keyboard != nil {
			msg.ReplyMarkup = *keyboard
		}
		if _, err := n.sender.Send(msg); err != nil {
			metrics.IncNotification(kind, "error")
			n.logger.Error().Err(err).Int64("chat_id", chatID).Str("kind", kind).Msg("Telegram send failed")
			continue
		}
		metrics.IncNotification(kind, "ok")
	}
}

// Callback data prefixes; the appointment id follows the prefix.
const (
	CallbackApprove  = "approve:"
	CallbackReject   = "reject:"
	CallbackComplete = "complete:"
)

// ActionKeyboard offers the workflow steps available from the appointment's
// status, or nil when there are none.
func ActionKeyboard(a models.Appointment) *tgbotapi.InlineKeyboardMarkup {
	var row []tgbotapi.InlineKeyboardButton
	switch a.Status {
	case models.StatusPending:
		row = tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Aprovar", CallbackApprove+a.ID),
			tgbotapi.NewInlineKeyboardButtonData("Rejeitar", CallbackReject+a.ID),
		)
	case models.StatusApproved:
		row = tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Concluir", CallbackComplete+a.ID),
		)
	default:
		return nil
	}
	keyboard := tgbotapi.NewInlineKeyboardMarkup(row)
	return &keyboard
}

// FormatNewAppointment renders the message for one booking request.
func FormatNewAppointment(a models.Appointment) string {
	return "Novo agendamento pendente\n\n" + FormatDetails(a)
}

// FormatDetails renders the client and slot of an appointment.
func FormatDetails(a models.Appointment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cliente: %s\n", a.Name)
	fmt.Fprintf(&b, "E-mail: %s\n", a.Email)
	fmt.Fprintf(&b, "Telefone: %s\n", a.Phone)
	fmt.Fprintf(&b, "Data: %s às %s\n", displayDate(a.Date), a.Time)
	if a.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", a.Description)
	}
	return b.String()
}

// FormatDigest renders the daily summary of pending appointments.
func FormatDigest(items []models.Appointment, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Resumo de %s\n\n", now.Format("02/01/2006"))
	if len(items) == 0 {
		b.WriteString("Nenhum agendamento pendente.")
		return b.String()
	}
	fmt.Fprintf(&b, "%d agendamento(s) pendente(s):\n", len(items))
	for i := len(items) - 1; i >= 0; i-- {
		a := items[i]
		fmt.Fprintf(&b, "• %s %s - %s (%s)\n", displayDate(a.Date), a.Time, a.Name, a.Phone)
	}
	return b.String()
}

func displayDate(date string) string {
	t, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return date
	}
	return t.Format("02/01/2006")
}
