// Package collection keeps a client-side cache of one document collection in
// step with the backend store.
package collection

import (
	"context"
	"fmt"
	"sync"

	"tattoostudio/internal/domain"
	"tattoostudio/internal/metrics"
	"tattoostudio/internal/models"

	"github.com/rs/zerolog"
)

// Entity is an immutable record kept in a Hook cache.
type Entity[T any] interface {
	DocumentID() string
	WithID(id string) T
	ToFields() models.Fields
	Merge(patch models.Fields) (T, error)
}

// Decoder turns a stored document into a record.
type Decoder[T any] func(doc models.Document) (T, error)

// Messages are the user-facing errors, one per operation kind.
type Messages struct {
	List   string
	Add    string
	Update string
	Remove string
}

// DefaultMessages are the generic messages for collectionName.
func DefaultMessages(collectionName string) Messages {
	return Messages{
		List:   "Erro ao carregar " + collectionName,
		Add:    "Erro ao adicionar documento",
		Update: "Erro ao atualizar documento",
		Remove: "Erro ao excluir documento",
	}
}

// Options selects the collection and its ordering. Direction defaults to desc.
type Options struct {
	Collection string
	OrderBy    string
	Direction  models.Direction
}

func (o Options) withDefaults() Options {
	if o.Direction == "" {
		o.Direction = models.Desc
	}
	return o
}

func (o Options) query(where []models.Filter) models.Query {
	return models.Query{Where: where, OrderBy: o.OrderBy, Direction: o.Direction}
}

// State is a snapshot of the hook.
type State[T any] struct {
	Items   []T
	Loading bool
	Error   string
}

// Hook is a cached view of one collection. All methods are safe for
// concurrent use. Failures never return errors: they set State.Error to the
// operation's message and are logged.
type Hook[T Entity[T]] struct {
	store    domain.DocumentStore
	decode   Decoder[T]
	logger   *zerolog.Logger
	messages *Messages

	mu        sync.Mutex
	opts      Options
	items     []T
	loading   bool
	errMsg    string
	mounted   bool
	stopLive  func()
	listeners []func(State[T])
}

// New builds a hook. Loading starts true because the first list is expected
// to follow via Mount.
func New[T Entity[T]](store domain.DocumentStore, decode Decoder[T], opts Options, logger *zerolog.Logger) *Hook[T] {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &Hook[T]{
		store:   store,
		decode:  decode,
		logger:  logger,
		opts:    opts.withDefaults(),
		loading: true,
	}
}

// WithMessages overrides the user-facing messages. Call before Mount.
func (h *Hook[T]) WithMessages(m Messages) *Hook[T] {
	h.mu.Lock()
	h.messages = &m
	h.mu.Unlock()
	return h
}

func (h *Hook[T]) messagesLocked() Messages {
	if h.messages != nil {
		return *h.messages
	}
	return DefaultMessages(h.opts.Collection)
}

// OnChange registers fn to receive a snapshot after every state change.
func (h *Hook[T]) OnChange(fn func(State[T])) {
	h.mu.Lock()
	h.listeners = append(h.listeners, fn)
	h.mu.Unlock()
}

// Mount runs the first list. Later calls do nothing.
func (h *Hook[T]) Mount(ctx context.Context) {
	h.mu.Lock()
	if h.mounted {
		h.mu.Unlock()
		return
	}
	h.mounted = true
	h.mu.Unlock()
	h.List(ctx)
}

// Configure changes the collection or its ordering and re-lists when
// anything differs from the current options.
func (h *Hook[T]) Configure(ctx context.Context, opts Options) {
	opts = opts.withDefaults()
	h.mu.Lock()
	if opts == h.opts {
		h.mu.Unlock()
		return
	}
	h.opts = opts
	h.mu.Unlock()
	h.List(ctx)
}

// Options returns the current options.
func (h *Hook[T]) Options() Options {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opts
}

// List fetches the whole collection. On failure the cache keeps its previous
// value. Loading is cleared when the call completes either way; when calls
// race, the last one to complete wins.
func (h *Hook[T]) List(ctx context.Context) {
	h.mu.Lock()
	h.errMsg = ""
	h.loading = true
	opts := h.opts
	h.mu.Unlock()
	h.emit()

	docs, err := h.store.List(ctx, opts.Collection, opts.query(nil))

	h.mu.Lock()
	if err != nil {
		h.errMsg = h.messagesLocked().List
	} else {
		h.items = h.decodeAll(docs)
	}
	h.loading = false
	h.mu.Unlock()

	if err != nil {
		h.fail("list", opts.Collection, err)
	}
	h.emit()
}

func (h *Hook[T]) decodeAll(docs []models.Document) []T {
	items := make([]T, 0, len(docs))
	for _, doc := range docs {
		item, err := h.decode(doc)
		if err != nil {
			h.logger.Warn().Err(err).Str("document_id", doc.ID).Msg("Skipping undecodable document")
			continue
		}
		items = append(items, item)
	}
	return items
}

// Refresh re-runs List.
func (h *Hook[T]) Refresh(ctx context.Context) {
	h.List(ctx)
}

// Add creates record and, once the backend confirms, prepends it to the
// cache with its assigned id.
func (h *Hook[T]) Add(ctx context.Context, record T) (string, bool) {
	collection := h.Options().Collection
	id, err := h.store.Create(ctx, collection, record.ToFields())
	if err != nil {
		h.setError(h.message(func(m Messages) string { return m.Add }))
		h.fail("add", collection, err)
		return "", false
	}

	created := record.WithID(id)
	h.mu.Lock()
	items := make([]T, 0, len(h.items)+1)
	items = append(items, created)
	h.items = append(items, h.items...)
	h.mu.Unlock()
	h.emit()
	return id, true
}

// Update patches the stored document and merges the same fields into the
// cached record, replacing it with the merged copy. Ids missing from the
// cache still reach the backend.
func (h *Hook[T]) Update(ctx context.Context, id string, patch models.Fields) bool {
	collection := h.Options().Collection
	updateMsg := h.message(func(m Messages) string { return m.Update })

	if cached, ok := h.find(id); ok {
		if _, err := cached.Merge(patch); err != nil {
			h.setError(updateMsg)
			h.fail("update", collection, err)
			return false
		}
	}

	if err := h.store.Patch(ctx, collection, id, patch); err != nil {
		h.setError(updateMsg)
		h.fail("update", collection, err)
		return false
	}

	h.mu.Lock()
	for i, item := range h.items {
		if item.DocumentID() != id {
			continue
		}
		merged, err := item.Merge(patch)
		if err != nil {
			// Validated before the backend call; only reachable if the cache changed meanwhile.
			h.logger.Warn().Err(err).Str("document_id", id).Msg("Cached record could not be merged")
			break
		}
		next := make([]T, len(h.items))
		copy(next, h.items)
		next[i] = merged
		h.items = next
		break
	}
	h.mu.Unlock()
	h.emit()
	return true
}

// Remove deletes the document and drops it from the cache.
func (h *Hook[T]) Remove(ctx context.Context, id string) bool {
	collection := h.Options().Collection
	if err := h.store.Delete(ctx, collection, id); err != nil {
		h.setError(h.message(func(m Messages) string { return m.Remove }))
		h.fail("remove", collection, err)
		return false
	}

	h.mu.Lock()
	next := make([]T, 0, len(h.items))
	for _, item := range h.items {
		if item.DocumentID() != id {
			next = append(next, item)
		}
	}
	h.items = next
	h.mu.Unlock()
	h.emit()
	return true
}

// Live replaces the cache with every snapshot of the collection filtered by
// where, until the returned func is called or ctx ends. A previous Live
// subscription on the same hook is stopped first.
func (h *Hook[T]) Live(ctx context.Context, where ...models.Filter) (func(), error) {
	h.mu.Lock()
	if h.stopLive != nil {
		h.stopLive()
		h.stopLive = nil
	}
	opts := h.opts
	h.loading = true
	h.errMsg = ""
	h.mu.Unlock()

	stop, err := h.store.Watch(ctx, opts.Collection, opts.query(where), func(docs []models.Document, err error) {
		h.mu.Lock()
		if err != nil {
			h.errMsg = h.messagesLocked().List
		} else {
			h.items = h.decodeAll(docs)
			h.errMsg = ""
		}
		h.loading = false
		h.mu.Unlock()
		if err != nil {
			h.fail("watch", opts.Collection, err)
		}
		h.emit()
	})
	if err != nil {
		h.mu.Lock()
		h.loading = false
		h.errMsg = h.messagesLocked().List
		h.mu.Unlock()
		h.fail("watch", opts.Collection, err)
		return nil, fmt.Errorf("watch %s: %w", opts.Collection, err)
	}

	h.mu.Lock()
	h.stopLive = stop
	h.mu.Unlock()
	return stop, nil
}

// Get returns the cached record with id.
func (h *Hook[T]) Get(id string) (T, bool) {
	return h.find(id)
}

func (h *Hook[T]) find(id string) (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, item := range h.items {
		if item.DocumentID() == id {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// State returns a snapshot; Items is a copy in fetch order.
func (h *Hook[T]) State() State[T] {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stateLocked()
}

func (h *Hook[T]) stateLocked() State[T] {
	items := make([]T, len(h.items))
	copy(items, h.items)
	return State[T]{Items: items, Loading: h.loading, Error: h.errMsg}
}

func (h *Hook[T]) message(pick func(Messages) string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return pick(h.messagesLocked())
}

func (h *Hook[T]) setError(msg string) {
	h.mu.Lock()
	h.errMsg = msg
	h.mu.Unlock()
	h.emit()
}

func (h *Hook[T]) fail(op, collection string, err error) {
	metrics.IncCollectionError(collection, op)
	h.logger.Error().Err(err).Str("collection", collection).Str("op", op).Msg("Collection operation failed")
}

func (h *Hook[T]) emit() {
	h.mu.Lock()
	if len(h.listeners) == 0 {
		h.mu.Unlock()
		return
	}
	state := h.stateLocked()
	listeners := append([]func(State[T]){}, h.listeners...)
	h.mu.Unlock()
	for _, fn := range listeners {
		fn(state)
	}
}
