package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"tattoostudio/internal/domain"
	"tattoostudio/internal/models"

	"github.com/google/uuid"
)

// NormalizeFields round-trips fields through JSON so values compare the same
// way regardless of which store holds them.
func NormalizeFields(fields models.Fields) (models.Fields, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	out := models.Fields{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return out, nil
}

// NormalizeValue converts a single filter value the way NormalizeFields does.
func NormalizeValue(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return out, nil
}

// rank orders values of different kinds: null < bool < number < string < other.
func rank(v interface{}) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

// CompareValues orders two normalized values.
func CompareValues(a, b interface{}) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case string:
		bv := b.(string)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	}
	return 0
}

func matches(fields models.Fields, f models.Filter, value interface{}) bool {
	got, ok := fields[f.Field]
	if !ok {
		return false
	}
	// Range operators only match values of the same kind.
	if f.Op != models.OpEqual && f.Op != models.OpNotEqual && rank(got) != rank(value) {
		return false
	}
	c := CompareValues(got, value)
	switch f.Op {
	case models.OpEqual:
		return rank(got) == rank(value) && c == 0
	case models.OpNotEqual:
		return rank(got) != rank(value) || c != 0
	case models.OpLess:
		return c < 0
	case models.OpLessEqual:
		return c <= 0
	case models.OpGreater:
		return c > 0
	case models.OpGreaterEqual:
		return c >= 0
	}
	return false
}

type memoryDoc struct {
	fields models.Fields
	seq    int64
}

// MemoryDocumentStore is an in-process DocumentStore.
type MemoryDocumentStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]*memoryDoc
	seq         int64
	feed        domain.ChangeFeed
}

func NewMemoryDocumentStore(feed domain.ChangeFeed) *MemoryDocumentStore {
	return &MemoryDocumentStore{
		collections: make(map[string]map[string]*memoryDoc),
		feed:        feed,
	}
}

func (s *MemoryDocumentStore) changed(collection string) {
	if s.feed != nil {
		s.feed.PublishChange(collection)
	}
}

func (s *MemoryDocumentStore) Create(ctx context.Context, collection string, fields models.Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if collection == "" {
		return "", errors.New("collection name is required")
	}
	normalized, err := NormalizeFields(fields)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	s.mu.Lock()
	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]*memoryDoc)
		s.collections[collection] = docs
	}
	s.seq++
	docs[id] = &memoryDoc{fields: normalized, seq: s.seq}
	s.mu.Unlock()

	s.changed(collection)
	return id, nil
}

func (s *MemoryDocumentStore) Patch(ctx context.Context, collection, id string, fields models.Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	normalized, err := NormalizeFields(fields)
	if err != nil {
		return err
	}

	s.mu.Lock()
	doc, ok := s.collections[collection][id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%s/%s: %w", collection, id, domain.ErrNotFound)
	}
	merged := doc.fields.Clone()
	for k, v := range normalized {
		merged[k] = v
	}
	doc.fields = merged
	s.mu.Unlock()

	s.changed(collection)
	return nil
}

func (s *MemoryDocumentStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if _, ok := s.collections[collection][id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%s/%s: %w", collection, id, domain.ErrNotFound)
	}
	delete(s.collections[collection], id)
	s.mu.Unlock()

	s.changed(collection)
	return nil
}

func (s *MemoryDocumentStore) List(ctx context.Context, collection string, q models.Query) ([]models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	values := make([]interface{}, len(q.Where))
	for i, f := range q.Where {
		v, err := NormalizeValue(f.Value)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}

	type row struct {
		id  string
		doc *memoryDoc
	}

	s.mu.RLock()
	rows := make([]row, 0, len(s.collections[collection]))
	for id, doc := range s.collections[collection] {
		keep := true
		for i, f := range q.Where {
			if !matches(doc.fields, f, values[i]) {
				keep = false
				break
			}
		}
		if q.OrderBy != "" {
			if _, ok := doc.fields[q.OrderBy]; !ok {
				keep = false
			}
		}
		if keep {
			rows = append(rows, row{id: id, doc: doc})
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if q.OrderBy != "" {
			c := CompareValues(rows[i].doc.fields[q.OrderBy], rows[j].doc.fields[q.OrderBy])
			if c != 0 {
				if q.Direction == models.Desc {
					return c > 0
				}
				return c < 0
			}
		}
		return rows[i].doc.seq < rows[j].doc.seq
	})

	out := make([]models.Document, len(rows))
	for i, r := range rows {
		out[i] = models.Document{ID: r.id, Fields: r.doc.fields.Clone()}
	}
	s.mu.RUnlock()
	return out, nil
}

func (s *MemoryDocumentStore) Watch(ctx context.Context, collection string, q models.Query, onSnapshot domain.SnapshotFunc) (func(), error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return WatchCollection(ctx, s.feed, collection, func(ctx context.Context) ([]models.Document, error) {
		return s.List(ctx, collection, q)
	}, onSnapshot)
}
