package notify

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"tipsterarena/backend/internal/metrics"
)

const subscriberBuffer = 64

type memSubscriber struct {
	ch chan Notification
}

// MemoryBus is an in-process Bus with a per-topic ring buffer
type MemoryBus struct {
	mu          sync.Mutex
	historySize int
	history     map[string][]Notification
	subscribers map[string]map[*memSubscriber]struct{}
	closed      bool
}

// NewMemoryBus creates a bus retaining historySize notifications per topic
func NewMemoryBus(historySize int) *MemoryBus {
	return &MemoryBus{
		historySize: historySize,
		history:     make(map[string][]Notification),
		subscribers: make(map[string]map[*memSubscriber]struct{}),
	}
}

func (b *MemoryBus) Publish(ctx context.Context, topic, kind string, payload any) (Notification, error) {
	n, err := newNotification(topic, kind, payload)
	if err != nil {
		return Notification{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return Notification{}, ErrClosed
	}

	if b.historySize > 0 {
		h := append(b.history[topic], n)
		if len(h) > b.historySize {
			h = append([]Notification(nil), h[len(h)-b.historySize:]...)
		}
		b.history[topic] = h
	}

	for sub := range b.subscribers[topic] {
		select {
		case sub.ch <- n:
		default:
			metrics.RecordNotificationDropped()
			log.Warn().
				Str("topic", topic).
				Str("id", n.ID).
				Msg("Subscriber too slow, notification dropped")
		}
	}

	metrics.RecordNotification(kind)
	return n, nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, topic, lastSeenID string) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	// Replay is queued before the subscriber is registered, under the same
	// lock, so nothing published meanwhile can overtake it
	replay := replayAfter(b.history[topic], lastSeenID)
	sub := &memSubscriber{ch: make(chan Notification, len(replay)+subscriberBuffer)}
	for _, n := range replay {
		sub.ch <- n
	}

	if b.subscribers[topic] == nil {
		b.subscribers[topic] = make(map[*memSubscriber]struct{})
	}
	b.subscribers[topic][sub] = struct{}{}

	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{C: sub.ch}
	s.closeFn = func() {
		cancel()
		b.remove(topic, sub)
	}
	go func() {
		<-ctx.Done()
		s.Close()
	}()

	return s, nil
}

func (b *MemoryBus) remove(topic string, sub *memSubscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, ok := b.subscribers[topic]; ok {
		if _, ok := subs[sub]; ok {
			delete(subs, sub)
			close(sub.ch)
		}
		if len(subs) == 0 {
			delete(b.subscribers, topic)
		}
	}
}

// Close ends every subscription; further publishes fail with ErrClosed
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for topic, subs := range b.subscribers {
		for sub := range subs {
			close(sub.ch)
		}
		delete(b.subscribers, topic)
	}
	return nil
}
