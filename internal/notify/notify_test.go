package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tattoostudio/internal/appointments"
	"tattoostudio/internal/events"
	"tattoostudio/internal/models"
	"tattoostudio/internal/repository"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.MessageConfig(nil), f.sent...)
}

func booking(name string) models.Appointment {
	return models.Appointment{
		Name: name, Email: "cliente@example.com", Phone: "11999998888",
		Date: "2026-10-20", Time: "14:00", Description: "Mandala geométrica nas costas",
	}
}

func startNotifier(t *testing.T, sender *fakeSender, chats []int64) (*Notifier, *appointments.Hook) {
	t.Helper()
	bus := events.NewEventBus()
	store := repository.NewMemoryDocumentStore(bus)
	hook := appointments.NewHook(store, bus, nil)

	_, ok := hook.Create(context.Background(), booking("Existente"))
	require.True(t, ok)

	n := New(sender, chats, store, "", nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	require.Eventually(t, func() bool {
		n.mu.Lock()
		defer n.mu.Unlock()
		return n.primed
	}, 2*time.Second, 5*time.Millisecond)
	return n, hook
}

func TestNotifier_AnnouncesOnlyNewPendingAppointments(t *testing.T) {
	sender := &fakeSender{}
	_, hook := startNotifier(t, sender, []int64{100, 200})

	assert.Empty(t, sender.messages(), "appointments pending at startup are left to the digest")

	_, ok := hook.Create(context.Background(), booking("Bruna Costa"))
	require.True(t, ok)

	require.Eventually(t, func() bool { return len(sender.messages()) == 2 }, 2*time.Second, 5*time.Millisecond)
	msgs := sender.messages()
	assert.Equal(t, int64(100), msgs[0].ChatID)
	assert.Equal(t, int64(200), msgs[1].ChatID)
	assert.Contains(t, msgs[0].Text, "Bruna Costa")
	assert.Contains(t, msgs[0].Text, "20/10/2026 às 14:00")
	_, hasKeyboard := msgs[0].ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	assert.True(t, hasKeyboard)
}

func TestNotifier_StatusChangeDoesNotAnnounce(t *testing.T) {
	sender := &fakeSender{}
	_, hook := startNotifier(t, sender, []int64{100})

	hook.Refresh(context.Background())
	items := hook.State().Items
	require.Len(t, items, 1)
	require.NoError(t, hook.SetStatus(context.Background(), items[0].ID, models.StatusApproved))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sender.messages())
}

func TestNotifier_SendDigest(t *testing.T) {
	sender := &fakeSender{}
	n, _ := startNotifier(t, sender, []int64{100})
	n.now = func() time.Time { return time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC) }

	n.SendDigest()

	msgs := sender.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "Resumo de 18/10/2026")
	assert.Contains(t, msgs[0].Text, "1 agendamento(s) pendente(s)")
	assert.Contains(t, msgs[0].Text, "Existente")
}

func TestNotifier_SendFailureIsLogged(t *testing.T) {
	sender := &fakeSender{err: errors.New("telegram down")}
	n, _ := startNotifier(t, sender, []int64{100})

	assert.NotPanics(t, n.SendDigest)
	assert.Empty(t, sender.messages())
}

func TestNotifier_InvalidSchedule(t *testing.T) {
	store := repository.NewMemoryDocumentStore(nil)
	n := New(&fakeSender{}, []int64{1}, store, "every day", nil)

	err := n.Run(context.Background())
	assert.Error(t, err)
}

func TestFormatDigest_Empty(t *testing.T) {
	text := FormatDigest(nil, time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC))
	assert.Contains(t, text, "Nenhum agendamento pendente.")
}

func TestFormatNewAppointment(t *testing.T) {
	a := booking("Carla")
	a.Date = "not-a-date"
	text := FormatNewAppointment(a)
	assert.Contains(t, text, "Data: not-a-date às 14:00")
	assert.Contains(t, text, "Mandala geométrica")
}

func TestActionKeyboard(t *testing.T) {
	a := booking("Dani")
	a.ID = "apt-1"

	a.Status = models.StatusPending
	kb := ActionKeyboard(a)
	require.NotNil(t, kb)
	require.Len(t, kb.InlineKeyboard[0], 2)
	require.NotNil(t, kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "approve:apt-1", *kb.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "reject:apt-1", *kb.InlineKeyboard[0][1].CallbackData)

	a.Status = models.StatusApproved
	kb = ActionKeyboard(a)
	require.NotNil(t, kb)
	assert.Equal(t, "complete:apt-1", *kb.InlineKeyboard[0][0].CallbackData)

	a.Status = models.StatusCompleted
	assert.Nil(t, ActionKeyboard(a))
}
