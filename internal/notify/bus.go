// Package notify is the publish/subscribe bus behind badge, tip and event
// notifications. Each topic keeps its last N notifications; a subscriber
// reconnecting with the last ID it saw gets the ones it missed, then live
// delivery.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrClosed is returned by a bus that has been closed
var ErrClosed = errors.New("notification bus closed")

// Notification kinds
const (
	KindBadgeAwarded = "badge_awarded"
	KindTipSettled   = "tip_settled"
	KindEventState   = "event_state"
)

// Topic helpers
func BadgeTopic(userID int64) string { return fmt.Sprintf("badges.%d", userID) }
func TipTopic(userID int64) string   { return fmt.Sprintf("tips.%d", userID) }
func EventTopic(sport string) string { return "events." + sport }

// Notification is one message on a topic
type Notification struct {
	ID        string          `json:"id"`
	Topic     string          `json:"topic"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Bus publishes notifications and streams them to subscribers
type Bus interface {
	Publish(ctx context.Context, topic, kind string, payload any) (Notification, error)
	Subscribe(ctx context.Context, topic, lastSeenID string) (*Subscription, error)
	Close() error
}

// Subscription delivers replayed then live notifications on C. C is closed
// when the subscription ends: on Close, on context cancellation or when the
// bus closes.
type Subscription struct {
	C <-chan Notification

	once    sync.Once
	closeFn func()
}

// Close ends the subscription
func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.closeFn != nil {
			s.closeFn()
		}
	})
}

func newNotification(topic, kind string, payload any) (Notification, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Notification{}, fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}
	return Notification{
		ID:        uuid.NewString(),
		Topic:     topic,
		Kind:      kind,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// replayAfter returns the notifications in history (oldest first) that come
// after lastSeenID. An empty or unknown ID replays everything retained.
func replayAfter(history []Notification, lastSeenID string) []Notification {
	if lastSeenID != "" {
		for i := len(history) - 1; i >= 0; i-- {
			if history[i].ID == lastSeenID {
				return append([]Notification(nil), history[i+1:]...)
			}
		}
	}
	return append([]Notification(nil), history...)
}
