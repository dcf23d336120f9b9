package collection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tattoostudio/internal/domain"
	"tattoostudio/internal/events"
	"tattoostudio/internal/models"
	"tattoostudio/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend unavailable")

// flakyStore fails the operations named in failing and can hold List calls.
type flakyStore struct {
	*repository.MemoryDocumentStore

	mu      sync.Mutex
	failing map[string]bool
	gates   []chan struct{}
	calls   map[string]int
}

func newFlakyStore() *flakyStore {
	return &flakyStore{
		MemoryDocumentStore: repository.NewMemoryDocumentStore(events.NewEventBus()),
		failing:             map[string]bool{},
		calls:               map[string]int{},
	}
}

func (s *flakyStore) fail(op string, on bool) {
	s.mu.Lock()
	s.failing[op] = on
	s.mu.Unlock()
}

func (s *flakyStore) record(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
	if s.failing[op] {
		return errBackend
	}
	return nil
}

func (s *flakyStore) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// hold makes the next List block until the returned channel is closed.
func (s *flakyStore) hold() chan struct{} {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gates = append(s.gates, gate)
	s.mu.Unlock()
	return gate
}

func (s *flakyStore) Create(ctx context.Context, c string, f models.Fields) (string, error) {
	if err := s.record("create"); err != nil {
		return "", err
	}
	return s.MemoryDocumentStore.Create(ctx, c, f)
}

func (s *flakyStore) Patch(ctx context.Context, c, id string, f models.Fields) error {
	if err := s.record("patch"); err != nil {
		return err
	}
	return s.MemoryDocumentStore.Patch(ctx, c, id, f)
}

func (s *flakyStore) Delete(ctx context.Context, c, id string) error {
	if err := s.record("delete"); err != nil {
		return err
	}
	return s.MemoryDocumentStore.Delete(ctx, c, id)
}

func (s *flakyStore) List(ctx context.Context, c string, q models.Query) ([]models.Document, error) {
	s.mu.Lock()
	var gate chan struct{}
	if len(s.gates) > 0 {
		gate, s.gates = s.gates[0], s.gates[1:]
	}
	s.mu.Unlock()

	docs, err := s.MemoryDocumentStore.List(ctx, c, q)
	if gate != nil {
		<-gate
	}
	if ferr := s.record("list"); ferr != nil {
		return nil, ferr
	}
	return docs, err
}

var _ domain.DocumentStore = (*flakyStore)(nil)

func seed(t *testing.T, store domain.DocumentStore, names ...string) []string {
	t.Helper()
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	ids := make([]string, 0, len(names))
	for i, name := range names {
		a := models.Appointment{Name: name, Status: models.StatusPending, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		id, err := store.Create(context.Background(), models.CollectionAppointments, a.ToFields())
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func newAppointmentHook(store domain.DocumentStore) *Hook[models.Appointment] {
	return New[models.Appointment](store, models.AppointmentFromDocument, Options{
		Collection: models.CollectionAppointments,
		OrderBy:    models.FieldCreatedAt,
	}, nil)
}

func names(items []models.Appointment) []string {
	out := make([]string, len(items))
	for i, a := range items {
		out[i] = a.Name
	}
	return out
}

func TestHook_MountListsOnceNewestFirst(t *testing.T) {
	store := newFlakyStore()
	seed(t, store, "ana", "bruno", "carla")
	h := newAppointmentHook(store)
	ctx := context.Background()

	assert.True(t, h.State().Loading, "loading before the first list")
	assert.Equal(t, models.Desc, h.Options().Direction)

	h.Mount(ctx)
	h.Mount(ctx)

	state := h.State()
	assert.False(t, state.Loading)
	assert.Empty(t, state.Error)
	assert.Equal(t, []string{"carla", "bruno", "ana"}, names(state.Items))
	assert.Equal(t, 1, store.count("list"))
}

func TestHook_ListFailureKeepsCache(t *testing.T) {
	store := newFlakyStore()
	seed(t, store, "ana")
	h := newAppointmentHook(store)
	ctx := context.Background()
	h.Mount(ctx)

	store.fail("list", true)
	h.Refresh(ctx)

	state := h.State()
	assert.Equal(t, "Erro ao carregar appointments", state.Error)
	assert.False(t, state.Loading)
	assert.Equal(t, []string{"ana"}, names(state.Items))

	store.fail("list", false)
	h.List(ctx)
	assert.Empty(t, h.State().Error, "error cleared at the start of a list")
}

func TestHook_ConfigureRelistsOnChange(t *testing.T) {
	store := newFlakyStore()
	seed(t, store, "ana", "bruno")
	h := newAppointmentHook(store)
	ctx := context.Background()
	h.Mount(ctx)

	h.Configure(ctx, Options{Collection: models.CollectionAppointments, OrderBy: models.FieldCreatedAt})
	assert.Equal(t, 1, store.count("list"), "same options do not re-list")

	h.Configure(ctx, Options{Collection: models.CollectionAppointments, OrderBy: models.FieldCreatedAt, Direction: models.Asc})
	assert.Equal(t, 2, store.count("list"))
	assert.Equal(t, []string{"ana", "bruno"}, names(h.State().Items))
}

func TestHook_AddPrependsAfterConfirmation(t *testing.T) {
	store := newFlakyStore()
	seed(t, store, "ana")
	h := newAppointmentHook(store)
	ctx := context.Background()
	h.Mount(ctx)

	id, ok := h.Add(ctx, models.Appointment{Name: "dani", Status: models.StatusPending, CreatedAt: time.Now()})
	require.True(t, ok)
	require.NotEmpty(t, id)

	items := h.State().Items
	assert.Equal(t, []string{"dani", "ana"}, names(items))
	assert.Equal(t, id, items[0].ID)

	store.fail("create", true)
	id, ok = h.Add(ctx, models.Appointment{Name: "eva"})
	assert.False(t, ok)
	assert.Empty(t, id)
	assert.Equal(t, "Erro ao adicionar documento", h.State().Error)
	assert.Equal(t, items, h.State().Items)
}

func TestHook_UpdateMergesIntoNewRecord(t *testing.T) {
	store := newFlakyStore()
	ids := seed(t, store, "ana", "bruno")
	h := newAppointmentHook(store)
	ctx := context.Background()
	h.Mount(ctx)

	before := h.State().Items
	ok := h.Update(ctx, ids[0], models.Fields{models.FieldStatus: "approved"})
	require.True(t, ok)

	after, found := h.Get(ids[0])
	require.True(t, found)
	assert.Equal(t, models.StatusApproved, after.Status)
	assert.Equal(t, "ana", after.Name)
	assert.Equal(t, models.StatusPending, before[1].Status, "earlier snapshots are not mutated")

	t.Run("UnknownIdIsBackendFailure", func(t *testing.T) {
		ok := h.Update(ctx, "missing", models.Fields{models.FieldStatus: "approved"})
		assert.False(t, ok)
		assert.Equal(t, "Erro ao atualizar documento", h.State().Error)
	})

	t.Run("BackendFailureLeavesCache", func(t *testing.T) {
		store.fail("patch", true)
		defer store.fail("patch", false)
		ok := h.Update(ctx, ids[1], models.Fields{models.FieldStatus: "rejected"})
		assert.False(t, ok)
		b, _ := h.Get(ids[1])
		assert.Equal(t, models.StatusPending, b.Status)
	})

	t.Run("InvalidPatchNeverReachesBackend", func(t *testing.T) {
		calls := store.count("patch")
		ok := h.Update(ctx, ids[1], models.Fields{models.FieldStatus: 42})
		assert.False(t, ok)
		assert.Equal(t, calls, store.count("patch"))
	})

	t.Run("SuccessLeavesPreviousError", func(t *testing.T) {
		ok := h.Update(ctx, ids[1], models.Fields{models.FieldStatus: "approved"})
		assert.True(t, ok)
		assert.Equal(t, "Erro ao atualizar documento", h.State().Error)
	})
}

func TestHook_Remove(t *testing.T) {
	store := newFlakyStore()
	ids := seed(t, store, "ana", "bruno")
	h := newAppointmentHook(store)
	ctx := context.Background()
	h.Mount(ctx)

	require.True(t, h.Remove(ctx, ids[0]))
	assert.Equal(t, []string{"bruno"}, names(h.State().Items))

	assert.False(t, h.Remove(ctx, ids[0]))
	assert.Equal(t, "Erro ao excluir documento", h.State().Error)
	assert.Len(t, h.State().Items, 1)
}

func TestHook_CustomMessages(t *testing.T) {
	store := newFlakyStore()
	h := newAppointmentHook(store).WithMessages(Messages{List: "falhou"})
	store.fail("list", true)
	h.Mount(context.Background())
	assert.Equal(t, "falhou", h.State().Error)
}

func TestHook_LastListToResolveWins(t *testing.T) {
	store := newFlakyStore()
	seed(t, store, "ana")
	h := newAppointmentHook(store)
	ctx := context.Background()

	slow := store.hold()
	done := make(chan struct{})
	go func() {
		h.List(ctx) // snapshot taken now, resolves later
		close(done)
	}()
	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.gates) == 0
	}, time.Second, time.Millisecond)

	seed(t, store, "bruno")
	h.List(ctx)
	assert.Len(t, h.State().Items, 2)

	close(slow)
	<-done
	assert.Equal(t, []string{"ana"}, names(h.State().Items), "the stale list resolved last and wins")
}

func TestHook_MutationsDoNotWaitForList(t *testing.T) {
	store := newFlakyStore()
	h := newAppointmentHook(store)
	ctx := context.Background()

	gate := store.hold()
	go h.List(ctx)
	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.gates) == 0
	}, time.Second, time.Millisecond)

	_, ok := h.Add(ctx, models.Appointment{Name: "ana", Status: models.StatusPending})
	assert.True(t, ok)
	assert.True(t, h.State().Loading)
	close(gate)
	require.Eventually(t, func() bool { return !h.State().Loading }, time.Second, time.Millisecond)
}

func TestHook_LiveFollowsChanges(t *testing.T) {
	store := newFlakyStore()
	seed(t, store, "ana")
	h := newAppointmentHook(store)
	ctx := context.Background()

	var mu sync.Mutex
	var seen []int
	h.OnChange(func(s State[models.Appointment]) {
		mu.Lock()
		seen = append(seen, len(s.Items))
		mu.Unlock()
	})

	stop, err := h.Live(ctx, models.Where(models.FieldStatus, models.StatusPending))
	require.NoError(t, err)
	defer stop()

	require.Eventually(t, func() bool { return len(h.State().Items) == 1 }, time.Second, 5*time.Millisecond)

	ids := seed(t, store, "bruno")
	require.Eventually(t, func() bool { return len(h.State().Items) == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, store.MemoryDocumentStore.Patch(ctx, models.CollectionAppointments, ids[0], models.Fields{"status": "approved"}))
	require.Eventually(t, func() bool { return len(h.State().Items) == 1 }, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.NotEmpty(t, seen)
	mu.Unlock()
}
