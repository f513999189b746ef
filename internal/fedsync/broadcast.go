package fedsync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisBroadcaster fans logout events out over a Redis pub/sub channel so
// every instance serving the same origin can tell its connected tabs to drop
// in-memory state.
type RedisBroadcaster struct {
	client  *redis.Client
	channel string
}

// NewRedisBroadcaster creates a broadcaster publishing on the given channel.
func NewRedisBroadcaster(client *redis.Client, channel string) *RedisBroadcaster {
	return &RedisBroadcaster{
		client:  client,
		channel: channel,
	}
}

// Broadcast implements Broadcaster.Broadcast.
func (b *RedisBroadcaster) Broadcast(ctx context.Context, event LogoutEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal logout event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish logout event: %w", err)
	}
	return nil
}

// Subscribe yields logout events published by any instance. The returned stop
// func closes the subscription.
func (b *RedisBroadcaster) Subscribe(ctx context.Context) (<-chan LogoutEvent, func(), error) {
	sub := b.client.Subscribe(ctx, b.channel)
	events := make(chan LogoutEvent)

	go func() {
		defer close(events)
		for msg := range sub.Channel() {
			var event LogoutEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Warn().Err(err).Msg("failed to decode logout event from pub/sub")
				continue
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	stop := func() {
		if err := sub.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close logout event subscription")
		}
	}
	return events, stop, nil
}

var _ Broadcaster = (*RedisBroadcaster)(nil)

// LocalBroadcaster is an in-process Broadcaster for single-instance
// deployments and tests.
type LocalBroadcaster struct {
	mu   sync.RWMutex
	subs []chan LogoutEvent
}

// NewLocalBroadcaster creates an in-process broadcaster.
func NewLocalBroadcaster() *LocalBroadcaster {
	return &LocalBroadcaster{}
}

// Broadcast implements Broadcaster.Broadcast. Slow subscribers are skipped
// instead of blocking the logout path.
func (b *LocalBroadcaster) Broadcast(_ context.Context, event LogoutEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe registers a new listener.
func (b *LocalBroadcaster) Subscribe() <-chan LogoutEvent {
	ch := make(chan LogoutEvent, 8)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener registered with Subscribe and closes its
// channel.
func (b *LocalBroadcaster) Unsubscribe(ch <-chan LogoutEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub == ch {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(sub)
			return
		}
	}
}

var _ Broadcaster = (*LocalBroadcaster)(nil)
