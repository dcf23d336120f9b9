// Package bot is the studio's Telegram admin bot: it lists appointments and
// applies the approve/reject/complete buttons sent with notifications.
package bot

import (
	"context"
	"time"

	"tattoostudio/internal/appointments"
	"tattoostudio/internal/domain"
	"tattoostudio/internal/metrics"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TelegramAPI is the part of *tgbotapi.BotAPI the bot uses.
type TelegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Bot struct {
	api      TelegramAPI
	hook     *appointments.Hook
	managers map[int64]struct{}
	logger   *zerolog.Logger
}

// New builds a bot answering only the given chat or user ids. Status changes
// are published on publisher like any other appointment change.
func New(api TelegramAPI, store domain.DocumentStore, publisher domain.EventPublisher, managers []int64, logger *zerolog.Logger) *Bot {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	set := make(map[int64]struct{}, len(managers))
	for _, id := range managers {
		set[id] = struct{}{}
	}
	return &Bot{
		api:      api,
		hook:     appointments.NewHook(store, publisher, logger),
		managers: set,
		logger:   logger,
	}
}

// Start handles updates until ctx is done or the update channel closes.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()
	b.logger.Info().Int("managers", len(b.managers)).Msg("Bot started")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	start := time.Now()
	defer func() { metrics.ObserveBotUpdate(time.Since(start).Seconds()) }()

	updateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	l := b.logger.With().Str("request_id", uuid.NewString()).Logger()
	updateCtx = l.WithContext(updateCtx)

	b.withRecovery(func() {
		switch {
		case update.CallbackQuery != nil:
			cb := update.CallbackQuery
			if !b.isManager(cb.From, cb.Message) {
				b.answer(cb.ID, accessDenied)
				metrics.IncBotUpdate("callback", "denied")
				return
			}
			b.handleCallbackQuery(updateCtx, cb)
		case update.Message != nil:
			msg := update.Message
			if !b.isManager(msg.From, msg) {
				b.sendMessage(msg.Chat.ID, accessDenied)
				metrics.IncBotUpdate("message", "denied")
				return
			}
			b.handleMessage(updateCtx, msg)
		}
	})
}

// isManager accepts a configured user id or a configured chat.
func (b *Bot) isManager(from *tgbotapi.User, msg *tgbotapi.Message) bool {
	if from != nil {
		if _, ok := b.managers[from.ID]; ok {
			return true
		}
	}
	if msg != nil && msg.Chat != nil {
		if _, ok := b.managers[msg.Chat.ID]; ok {
			return true
		}
	}
	return false
}

func (b *Bot) withRecovery(handler func()) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncBotUpdate("panic", "error")
			b.logger.Error().Interface("panic", r).Msg("Recovered from panic in update handler")
		}
	}()
	handler()
}

func (b *Bot) sendMessage(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.logger.Warn().Err(err).Msg("Failed to answer callback")
	}
}
