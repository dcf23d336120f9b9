package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"tattoostudio/internal/appointments"
	"tattoostudio/internal/events"
	"tattoostudio/internal/models"
	"tattoostudio/internal/notify"
	"tattoostudio/internal/repository"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const managerID int64 = 42

type fakeAPI struct {
	mu        sync.Mutex
	sent      []tgbotapi.Chattable
	callbacks []tgbotapi.CallbackConfig
	updates   chan tgbotapi.Update
	stopped   bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{updates: make(chan tgbotapi.Update, 8)}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cb, ok := c.(tgbotapi.CallbackConfig); ok {
		f.callbacks = append(f.callbacks, cb)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		if msg, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, msg.Text)
		}
	}
	return out
}

func (f *fakeAPI) lastCallback() tgbotapi.CallbackConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.callbacks) == 0 {
		return tgbotapi.CallbackConfig{}
	}
	return f.callbacks[len(f.callbacks)-1]
}

type fixture struct {
	api   *fakeAPI
	bot   *Bot
	store *repository.MemoryDocumentStore
	hook  *appointments.Hook
}

func setup(t *testing.T) fixture {
	t.Helper()
	bus := events.NewEventBus()
	store := repository.NewMemoryDocumentStore(bus)
	api := newFakeAPI()
	return fixture{
		api:   api,
		bot:   New(api, store, bus, []int64{managerID}, nil),
		store: store,
		hook:  appointments.NewHook(store, bus, nil),
	}
}

func (f fixture) book(t *testing.T, name string) string {
	t.Helper()
	id, ok := f.hook.Create(context.Background(), models.Appointment{
		Name: name, Email: "cliente@example.com", Phone: "11999998888",
		Date: "2026-11-03", Time: "16:00", Description: "Fineline no pulso",
	})
	require.True(t, ok)
	return id
}

func command(from int64, text string) tgbotapi.Update {
	cmd := strings.SplitN(text, " ", 2)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: from},
		Chat: &tgbotapi.Chat{ID: from},
		Text: text,
		Entities: []tgbotapi.MessageEntity{
			{Type: "bot_command", Offset: 0, Length: len(cmd)},
		},
	}}
}

func callback(from int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		From:    &tgbotapi.User{ID: from},
		Data:    data,
		Message: &tgbotapi.Message{MessageID: 7, Chat: &tgbotapi.Chat{ID: from}},
	}}
}

func TestBot_RejectsStrangers(t *testing.T) {
	f := setup(t)
	id := f.book(t, "Bruno")

	f.bot.processUpdate(context.Background(), command(999, "/pendentes"))
	assert.Equal(t, []string{accessDenied}, f.api.texts())

	f.bot.processUpdate(context.Background(), callback(999, notify.CallbackApprove+id))
	assert.Equal(t, accessDenied, f.api.lastCallback().Text)

	f.hook.Refresh(context.Background())
	a, _ := f.hook.Get(id)
	assert.Equal(t, models.StatusPending, a.Status)
}

func TestBot_ListsPendingWithButtons(t *testing.T) {
	f := setup(t)
	f.book(t, "Carla")
	f.book(t, "Diego")

	f.bot.processUpdate(context.Background(), command(managerID, "/pendentes"))

	f.api.mu.Lock()
	sent := append([]tgbotapi.Chattable(nil), f.api.sent...)
	f.api.mu.Unlock()
	require.Len(t, sent, 2)
	joined := ""
	for _, c := range sent {
		msg := c.(tgbotapi.MessageConfig)
		assert.Contains(t, msg.Text, "Status: Pendente")
		assert.NotNil(t, msg.ReplyMarkup)
		joined += msg.Text
	}
	assert.Contains(t, joined, "Carla")
	assert.Contains(t, joined, "Diego")
}

func TestBot_EmptyListAndStats(t *testing.T) {
	f := setup(t)
	f.bot.processUpdate(context.Background(), command(managerID, "/aprovados"))
	f.book(t, "Elisa")
	f.bot.processUpdate(context.Background(), command(managerID, "/resumo"))
	f.bot.processUpdate(context.Background(), command(managerID, "/tatuar"))

	texts := f.api.texts()
	require.Len(t, texts, 3)
	assert.Equal(t, "Nenhum agendamento aprovado.", texts[0])
	assert.Contains(t, texts[1], "Total: 1")
	assert.Contains(t, texts[1], "Pendentes: 1")
	assert.Equal(t, unknownCommand, texts[2])
}

func TestBot_ApproveThenCompleteViaCallbacks(t *testing.T) {
	f := setup(t)
	id := f.book(t, "Fábio")
	ctx := context.Background()

	f.bot.processUpdate(ctx, callback(managerID, notify.CallbackApprove+id))
	assert.Equal(t, models.StatusApproved.Label(), f.api.lastCallback().Text)

	f.api.mu.Lock()
	edit, ok := f.api.sent[len(f.api.sent)-1].(tgbotapi.EditMessageTextConfig)
	f.api.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, 7, edit.MessageID)
	assert.Contains(t, edit.Text, "Status: Aprovado")
	require.NotNil(t, edit.ReplyMarkup)

	f.bot.processUpdate(ctx, callback(managerID, notify.CallbackReject+id))
	assert.Equal(t, "Este agendamento já foi atualizado.", f.api.lastCallback().Text)

	f.bot.processUpdate(ctx, callback(managerID, notify.CallbackComplete+id))
	assert.Equal(t, models.StatusCompleted.Label(), f.api.lastCallback().Text)

	f.hook.Refresh(ctx)
	a, _ := f.hook.Get(id)
	assert.Equal(t, models.StatusCompleted, a.Status)
}

func TestBot_UnknownAppointmentCallback(t *testing.T) {
	f := setup(t)
	f.bot.processUpdate(context.Background(), callback(managerID, notify.CallbackApprove+"nope"))
	assert.Equal(t, "Agendamento não encontrado.", f.api.lastCallback().Text)

	f.bot.processUpdate(context.Background(), callback(managerID, "garbage"))
	assert.Equal(t, "", f.api.lastCallback().Text)
}

func TestParseCallback(t *testing.T) {
	to, id, ok := parseCallback(notify.CallbackReject + "abc")
	require.True(t, ok)
	assert.Equal(t, models.StatusRejected, to)
	assert.Equal(t, "abc", id)

	_, _, ok = parseCallback(notify.CallbackApprove)
	assert.False(t, ok)
}

func TestBot_StartStopsOnCancel(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.bot.Start(ctx)
		close(done)
	}()

	f.api.updates <- command(managerID, "/ajuda")
	require.Eventually(t, func() bool { return len(f.api.texts()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, helpText, f.api.texts()[0])

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("bot did not stop")
	}
	f.api.mu.Lock()
	assert.True(t, f.api.stopped)
	f.api.mu.Unlock()
}
