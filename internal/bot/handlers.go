package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tattoostudio/internal/appointments"
	"tattoostudio/internal/metrics"
	"tattoostudio/internal/models"
	"tattoostudio/internal/notify"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const (
	accessDenied   = "Acesso restrito à equipe do estúdio."
	unknownCommand = "Comando desconhecido. Use /ajuda."
	helpText       = `Comandos disponíveis:
/pendentes - agendamentos aguardando aprovação
/aprovados - agendamentos aprovados
/resumo - totais por status
/ajuda - esta mensagem`

	// maxListed caps the messages sent for one list command.
	maxListed = 20
)

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if !msg.IsCommand() {
		b.sendMessage(msg.Chat.ID, helpText)
		metrics.IncBotUpdate("message", "ok")
		return
	}

	switch msg.Command() {
	case "start", "ajuda":
		b.sendMessage(msg.Chat.ID, helpText)
	case "pendentes":
		b.sendList(ctx, msg.Chat.ID, models.StatusPending)
	case "aprovados":
		b.sendList(ctx, msg.Chat.ID, models.StatusApproved)
	case "resumo":
		b.sendStats(ctx, msg.Chat.ID)
	default:
		b.sendMessage(msg.Chat.ID, unknownCommand)
		metrics.IncBotUpdate("command", "unknown")
		return
	}
	metrics.IncBotUpdate("command", "ok")
}

// refresh reloads the cache and returns the hook's error message, if any.
func (b *Bot) refresh(ctx context.Context) string {
	b.hook.Refresh(ctx)
	return b.hook.State().Error
}

func (b *Bot) sendList(ctx context.Context, chatID int64, status models.Status) {
	if msg := b.refresh(ctx); msg != "" {
		b.sendMessage(chatID, msg)
		return
	}

	items := appointments.Filter(b.hook.State().Items, string(status))
	if len(items) == 0 {
		b.sendMessage(chatID, fmt.Sprintf("Nenhum agendamento %s.", strings.ToLower(status.Label())))
		return
	}
	if len(items) > maxListed {
		b.sendMessage(chatID, fmt.Sprintf("Mostrando os %d mais recentes de %d.", maxListed, len(items)))
		items = items[:maxListed]
	}

	for i := len(items) - 1; i >= 0; i-- {
		msg := tgbotapi.NewMessage(chatID, formatCard(items[i]))
		if kb := notify.ActionKeyboard(items[i]); kb != nil {
			msg.ReplyMarkup = *kb
		}
		if _, err := b.api.Send(msg); err != nil {
			b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send appointment")
		}
	}
}

func (b *Bot) sendStats(ctx context.Context, chatID int64) {
	if msg := b.refresh(ctx); msg != "" {
		b.sendMessage(chatID, msg)
		return
	}
	s := appointments.Stats(b.hook.State().Items)
	b.sendMessage(chatID, fmt.Sprintf("Total: %d\nPendentes: %d\nAprovados: %d\nConcluídos: %d",
		s.Total, s.Pending, s.Approved, s.Completed))
}

func formatCard(a models.Appointment) string {
	return fmt.Sprintf("Status: %s\n%s", a.Status.Label(), notify.FormatDetails(a))
}

// parseCallback maps callback data to the target status and appointment id.
func parseCallback(data string) (models.Status, string, bool) {
	for prefix, to := range map[string]models.Status{
		notify.CallbackApprove:  models.StatusApproved,
		notify.CallbackReject:   models.StatusRejected,
		notify.CallbackComplete: models.StatusCompleted,
	} {
		if id, ok := strings.CutPrefix(data, prefix); ok && id != "" {
			return to, id, true
		}
	}
	return "", "", false
}

func (b *Bot) handleCallbackQuery(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	to, id, ok := parseCallback(cb.Data)
	if !ok {
		b.answer(cb.ID, "")
		metrics.IncBotUpdate("callback", "unknown")
		return
	}

	err := b.hook.SetStatus(ctx, id, to)
	switch {
	case errors.Is(err, appointments.ErrUnknownAppointment):
		b.answer(cb.ID, "Agendamento não encontrado.")
		metrics.IncBotUpdate("callback", "not_found")
		return
	case errors.Is(err, appointments.ErrInvalidTransition):
		b.answer(cb.ID, "Este agendamento já foi atualizado.")
		metrics.IncBotUpdate("callback", "conflict")
		return
	case err != nil:
		b.answer(cb.ID, b.hook.State().Error)
		metrics.IncBotUpdate("callback", "error")
		return
	}

	zerolog.Ctx(ctx).Info().Str("appointment_id", id).Str("status", string(to)).Int64("user_id", cb.From.ID).Msg("Status changed from Telegram")
	b.answer(cb.ID, to.Label())
	metrics.IncBotUpdate("callback", "ok")

	if cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	updated, _ := b.hook.Get(id)
	var edit tgbotapi.Chattable
	if kb := notify.ActionKeyboard(updated); kb != nil {
		edit = tgbotapi.NewEditMessageTextAndMarkup(cb.Message.Chat.ID, cb.Message.MessageID, formatCard(updated), *kb)
	} else {
		edit = tgbotapi.NewEditMessageText(cb.Message.Chat.ID, cb.Message.MessageID, formatCard(updated))
	}
	if _, err := b.api.Send(edit); err != nil {
		b.logger.Warn().Err(err).Str("appointment_id", id).Msg("Failed to update message")
	}
}
