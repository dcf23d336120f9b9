package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisBridge relays collection_changed events between processes sharing a
// backend. Local changes go out on the channel, remote ones are republished
// on the local bus tagged with their origin so they are not echoed back.
type RedisBridge struct {
	bus     *EventBus
	client  *redis.Client
	channel string
	origin  string
	logger  *zerolog.Logger

	unsubscribe func()
	pubsub      *redis.PubSub
	wg          sync.WaitGroup
	stopOnce    sync.Once
}

func NewRedisBridge(bus *EventBus, client *redis.Client, channel string, logger *zerolog.Logger) *RedisBridge {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	return &RedisBridge{
		bus:     bus,
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logger,
	}
}

// Origin identifies this process on the channel.
func (b *RedisBridge) Origin() string {
	return b.origin
}

// Start subscribes to the channel and begins relaying in both directions.
func (b *RedisBridge) Start(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.pubsub = pubsub

	b.unsubscribe = b.bus.Subscribe(EventCollectionChanged, func(event *Event) error {
		var p CollectionChangedPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return err
		}
		if p.Origin != "" {
			return nil
		}
		p.Origin = b.origin
		raw, err := json.Marshal(p)
		if err != nil {
			return err
		}
		if err := b.client.Publish(ctx, b.channel, raw).Err(); err != nil {
			b.logger.Error().Err(err).Str("collection", p.Collection).Msg("Failed to relay change")
			return err
		}
		return nil
	})

	ch := b.pubsub.Channel()
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range ch {
			b.handleRemote(msg.Payload)
		}
	}()

	b.logger.Info().Str("channel", b.channel).Str("origin", b.origin).Msg("Change bridge started")
	return nil
}

func (b *RedisBridge) handleRemote(payload string) {
	var p CollectionChangedPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		b.logger.Warn().Err(err).Msg("Malformed change message")
		return
	}
	if p.Origin == "" || p.Origin == b.origin {
		return
	}
	if err := b.bus.PublishJSON(EventCollectionChanged, p); err != nil {
		b.logger.Error().Err(err).Msg("Failed to republish change")
	}
}

// Stop ends the relay. Safe to call more than once.
func (b *RedisBridge) Stop() {
	b.stopOnce.Do(func() {
		if b.unsubscribe != nil {
			b.unsubscribe()
		}
		if b.pubsub != nil {
			_ = b.pubsub.Close()
		}
		b.wg.Wait()
	})
}
