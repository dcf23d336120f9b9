package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"tattoostudio/internal/domain"
	"tattoostudio/internal/events"
	"tattoostudio/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAppointments(t *testing.T, store domain.DocumentStore) []string {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	var ids []string
	for i, name := range []string{"Ana", "Bruno", "Carla"} {
		a := models.Appointment{
			Name:      name,
			Status:    models.StatusPending,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		id, err := store.Create(ctx, models.CollectionAppointments, a.ToFields())
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func TestMemoryDocumentStore_ListOrdering(t *testing.T) {
	store := NewMemoryDocumentStore(nil)
	seedAppointments(t, store)
	ctx := context.Background()

	docs, err := store.List(ctx, models.CollectionAppointments, models.Query{OrderBy: models.FieldCreatedAt, Direction: models.Desc})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "Carla", docs[0].Fields.GetString(models.FieldName))
	assert.Equal(t, "Ana", docs[2].Fields.GetString(models.FieldName))

	docs, err = store.List(ctx, models.CollectionAppointments, models.Query{OrderBy: models.FieldName, Direction: models.Asc})
	require.NoError(t, err)
	assert.Equal(t, "Ana", docs[0].Fields.GetString(models.FieldName))
}

func TestMemoryDocumentStore_PatchDeleteFilter(t *testing.T) {
	store := NewMemoryDocumentStore(nil)
	ids := seedAppointments(t, store)
	ctx := context.Background()

	require.NoError(t, store.Patch(ctx, models.CollectionAppointments, ids[1], models.Fields{models.FieldStatus: models.StatusApproved}))
	require.NoError(t, store.Delete(ctx, models.CollectionAppointments, ids[0]))

	docs, err := store.List(ctx, models.CollectionAppointments, models.Query{
		Where: []models.Filter{models.Where(models.FieldStatus, models.StatusApproved)},
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, ids[1], docs[0].ID)
	assert.Equal(t, "Bruno", docs[0].Fields.GetString(models.FieldName))

	err = store.Patch(ctx, models.CollectionAppointments, "missing", models.Fields{"a": 1})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	err = store.Delete(ctx, models.CollectionAppointments, ids[0])
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = store.List(ctx, models.CollectionAppointments, models.Query{OrderBy: "bad field"})
	assert.Error(t, err)
}

func TestMemoryDocumentStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryDocumentStore(nil)
	ids := seedAppointments(t, store)
	ctx := context.Background()

	docs, err := store.List(ctx, models.CollectionAppointments, models.Query{})
	require.NoError(t, err)
	docs[0].Fields[models.FieldName] = "Mutated"

	docs, err = store.List(ctx, models.CollectionAppointments, models.Query{})
	require.NoError(t, err)
	assert.Equal(t, ids[0], docs[0].ID)
	assert.Equal(t, "Ana", docs[0].Fields.GetString(models.FieldName))
}

func TestCompareValues(t *testing.T) {
	assert.Equal(t, -1, CompareValues(nil, false))
	assert.Equal(t, -1, CompareValues(float64(1), "1"))
	assert.Equal(t, 1, CompareValues("b", "a"))
	assert.Equal(t, 0, CompareValues(true, true))
	assert.Equal(t, -1, CompareValues(float64(1), float64(2)))
}

func TestMemoryDocumentStore_Watch(t *testing.T) {
	bus := events.NewEventBus()
	store := NewMemoryDocumentStore(bus)
	ctx := context.Background()

	var mu sync.Mutex
	var snapshots [][]models.Document
	stop, err := store.Watch(ctx, models.CollectionAppointments, models.Query{
		Where: []models.Filter{models.Where(models.FieldStatus, "pending")},
	}, func(docs []models.Document, err error) {
		assert.NoError(t, err)
		mu.Lock()
		snapshots = append(snapshots, docs)
		mu.Unlock()
	})
	require.NoError(t, err)

	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(snapshots)
	}
	require.Eventually(t, func() bool { return count() == 1 }, time.Second, 5*time.Millisecond)

	seedAppointments(t, store)
	require.Eventually(t, func() bool { return count() == 4 }, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Empty(t, snapshots[0])
	assert.Len(t, snapshots[3], 3)
	mu.Unlock()

	stop()
	stop()
	_, err = store.Create(ctx, models.CollectionAppointments, models.Fields{"status": "pending"})
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 4, count())
}
