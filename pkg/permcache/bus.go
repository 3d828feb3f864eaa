package permcache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/quillhub/quillhub/pkg/observability"
)

// InvalidationEvent tells other processes which in-process entries to
// drop. Events are published after the shared tier has already been
// purged and the store mutation committed, so a subscriber that refills
// immediately can only read fresh data.
//
// Drive events carry the drive's page IDs so subscribers can purge
// without querying the store themselves.
type InvalidationEvent struct {
	Scope   string   `json:"scope"` // "user" or "drive"
	UserID  string   `json:"user_id,omitempty"`
	DriveID string   `json:"drive_id,omitempty"`
	PageIDs []string `json:"page_ids,omitempty"`
	Origin  string   `json:"origin"`
}

const (
	ScopeUser  = "user"
	ScopeDrive = "drive"
)

// Bus fans invalidation events out to every process sharing the cache.
// Delivery is best effort: a dropped event widens the staleness window
// of remote in-process tiers up to their TTL, nothing more, because the
// shared tier was already purged by the publisher.
type Bus interface {
	// Publish broadcasts an event to all subscribers.
	Publish(ctx context.Context, event InvalidationEvent) error

	// Start subscribes and calls handler for every foreign event until
	// the bus is closed. Events published by this bus instance are
	// skipped; the publisher already purged its own in-process tier.
	Start(ctx context.Context, handler func(InvalidationEvent)) error

	// Close stops the subscription and waits for the receive loop.
	Close() error
}

// RedisBus implements Bus on a Redis pub/sub channel.
type RedisBus struct {
	client  *redis.Client
	channel string
	origin  string
	logger  *observability.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	wg     sync.WaitGroup
}

// NewRedisBus creates a bus publishing and subscribing on channel.
func NewRedisBus(client *redis.Client, channel string, logger *observability.Logger) *RedisBus {
	return &RedisBus{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logger,
	}
}

// Origin identifies this bus instance in published events.
func (b *RedisBus) Origin() string {
	return b.origin
}

// Publish broadcasts an event to all subscribers.
func (b *RedisBus) Publish(ctx context.Context, event InvalidationEvent) error {
	if event.Origin == "" {
		event.Origin = b.origin
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation event: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("%w: publish: %v", ErrTierUnavailable, err)
	}
	return nil
}

// Start subscribes to the channel and dispatches foreign events to
// handler from a background goroutine.
func (b *RedisBus) Start(ctx context.Context, handler func(InvalidationEvent)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pubsub != nil {
		return fmt.Errorf("bus already started")
	}

	pubsub := b.client.Subscribe(ctx, b.channel)
	// Force the subscription to be established before returning.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("%w: subscribe: %v", ErrTierUnavailable, err)
	}
	b.pubsub = pubsub

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer observability.RecoverPanic(b.logger, "invalidation receive loop")
		for msg := range pubsub.Channel() {
			var event InvalidationEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.WithError(err).Warn("dropping malformed invalidation event")
				continue
			}
			if event.Origin == b.origin {
				continue
			}
			handler(event)
		}
	}()

	return nil
}

// Close stops the subscription and waits for in-flight dispatches.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	pubsub := b.pubsub
	b.pubsub = nil
	b.mu.Unlock()

	if pubsub == nil {
		return nil
	}
	err := pubsub.Close()
	b.wg.Wait()
	return err
}
