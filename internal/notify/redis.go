package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"tipsterarena/backend/internal/cache"
	"tipsterarena/backend/internal/metrics"
)

// RedisBus shares notifications between processes. History lives in a capped
// list per topic (newest first) and live delivery uses pub/sub.
type RedisBus struct {
	rdb         *redis.Client
	historySize int

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// NewRedisBus creates a bus on an existing connection. The connection stays
// owned by the caller.
func NewRedisBus(rdb *redis.Client, historySize int) *RedisBus {
	return &RedisBus{
		rdb:         rdb,
		historySize: historySize,
		subs:        make(map[*Subscription]struct{}),
	}
}

func historyKey(topic string) string { return fmt.Sprintf(cache.KeyNotifyHistory, topic) }
func channelKey(topic string) string { return fmt.Sprintf(cache.KeyNotifyChannel, topic) }

func (b *RedisBus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *RedisBus) Publish(ctx context.Context, topic, kind string, payload any) (Notification, error) {
	if b.isClosed() {
		return Notification{}, ErrClosed
	}

	n, err := newNotification(topic, kind, payload)
	if err != nil {
		return Notification{}, err
	}
	raw, err := json.Marshal(n)
	if err != nil {
		return Notification{}, err
	}

	pipe := b.rdb.TxPipeline()
	if b.historySize > 0 {
		pipe.LPush(ctx, historyKey(topic), raw)
		pipe.LTrim(ctx, historyKey(topic), 0, int64(b.historySize-1))
	}
	pipe.Publish(ctx, channelKey(topic), raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return Notification{}, fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	metrics.RecordNotification(kind)
	return n, nil
}

func (b *RedisBus) history(ctx context.Context, topic string) ([]Notification, error) {
	if b.historySize <= 0 {
		return nil, nil
	}
	items, err := b.rdb.LRange(ctx, historyKey(topic), 0, int64(b.historySize-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history for %s: %w", topic, err)
	}

	// Stored newest first
	history := make([]Notification, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		var n Notification
		if err := json.Unmarshal([]byte(items[i]), &n); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("Skipping bad notification in history")
			continue
		}
		history = append(history, n)
	}
	return history, nil
}

func (b *RedisBus) Subscribe(ctx context.Context, topic, lastSeenID string) (*Subscription, error) {
	if b.isClosed() {
		return nil, ErrClosed
	}

	ctx, cancel := context.WithCancel(ctx)

	// Subscribe before reading history so nothing falls between the two;
	// anything seen in both is delivered once
	pubsub := b.rdb.Subscribe(ctx, channelKey(topic))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		cancel()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	history, err := b.history(ctx, topic)
	if err != nil {
		_ = pubsub.Close()
		cancel()
		return nil, err
	}

	replay := replayAfter(history, lastSeenID)
	out := make(chan Notification, len(replay)+subscriberBuffer)
	delivered := make(map[string]struct{}, len(history))
	for _, n := range history {
		delivered[n.ID] = struct{}{}
	}
	for _, n := range replay {
		out <- n
	}

	done := make(chan struct{})
	s := &Subscription{C: out}
	s.closeFn = func() {
		cancel()
		<-done
		b.mu.Lock()
		delete(b.subs, s)
		b.mu.Unlock()
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = pubsub.Close()
		cancel()
		return nil, ErrClosed
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		defer close(done)
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var n Notification
				if err := json.Unmarshal([]byte(m.Payload), &n); err != nil {
					log.Warn().Err(err).Str("topic", topic).Msg("Bad notification payload")
					continue
				}
				if _, seen := delivered[n.ID]; seen {
					continue
				}
				select {
				case out <- n:
				default:
					metrics.RecordNotificationDropped()
					log.Warn().
						Str("topic", topic).
						Str("id", n.ID).
						Msg("Subscriber too slow, notification dropped")
				}
			}
		}
	}()

	// Ends the subscription when the caller's context is cancelled
	go func() {
		<-ctx.Done()
		s.Close()
	}()

	return s, nil
}

// Close ends every subscription. The Redis connection is left open.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
	return nil
}
