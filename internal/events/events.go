package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventAppointmentCreated       = "appointment_created"
	EventAppointmentStatusChanged = "appointment_status_changed"
	EventCollectionChanged        = "collection_changed"
)

// AppointmentEventPayload is the appointment snapshot handed to event consumers.
type AppointmentEventPayload struct {
	AppointmentID string    `json:"appointment_id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	Description   string    `json:"description,omitempty"`
	Status        string    `json:"status"`
	PreviousState string    `json:"previous_status,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// CollectionChangedPayload names the collection whose documents changed.
type CollectionChangedPayload struct {
	Collection string `json:"collection"`
	Origin     string `json:"origin,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

type subscription struct {
	id      int64
	handler EventHandler
}

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]subscription
	nextID      int64
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]subscription)}
}

// Subscribe registers a handler for a given event type. The returned func
// removes it and is safe to call more than once.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subscribers[eventType] = append(b.subscribers[eventType], subscription{id: id, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(eventType, id) })
	}
}

func (b *EventBus) unsubscribe(eventType string, id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[eventType]
	for i, s := range subs {
		if s.id == id {
			b.subscribers[eventType] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, s := range subs {
		// Handlers run synchronously; caller decides concurrency model.
		_ = s.handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}

// PublishChange implements domain.ChangeFeed.
func (b *EventBus) PublishChange(collection string) {
	_ = b.PublishJSON(EventCollectionChanged, CollectionChangedPayload{Collection: collection})
}

// SubscribeChanges implements domain.ChangeFeed.
func (b *EventBus) SubscribeChanges(collection string, fn func()) func() {
	return b.Subscribe(EventCollectionChanged, func(event *Event) error {
		var p CollectionChangedPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return err
		}
		if p.Collection == collection {
			fn()
		}
		return nil
	})
}
