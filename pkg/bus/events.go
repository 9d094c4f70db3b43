package bus

import (
	"context"
	"sync"
	"time"
)

type EventType string

const (
	EventCacheHit       EventType = "cache_hit"
	EventJobQueued      EventType = "job_queued"
	EventJobCompleted   EventType = "job_completed"
	EventJobFailed      EventType = "job_failed"
	EventWarningSent    EventType = "warning_sent"
	EventDeliveryFailed EventType = "delivery_failed"
)

// Event is a pipeline lifecycle notification.
type Event struct {
	Type    EventType         `json:"type"`
	At      time.Time         `json:"at"`
	Origin  ChatHandle        `json:"origin"`
	Key     string            `json:"key,omitempty"`
	JobID   string            `json:"job_id,omitempty"`
	Kind    string            `json:"kind,omitempty"`
	Payload map[string]string `json:"payload,omitempty"`
	Error   string            `json:"error,omitempty"`
}

func (h *Hub) PublishEvent(ctx context.Context, event Event) bool {
	if h == nil {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return false
	case <-h.done:
		return false
	default:
	}

	// Held across sends so unsubscribe cannot close a channel mid-send.
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			// Drop instead of blocking the publisher on slow subscribers.
		}
	}

	return true
}

func (h *Hub) SubscribeEvents(ctx context.Context, buffer int) (<-chan Event, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer <= 0 {
		buffer = defaultBufferSize
	}

	ch := make(chan Event, buffer)

	h.mu.Lock()
	select {
	case <-h.done:
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}

	id := h.nextSubscriberID
	h.nextSubscriberID++
	h.subscribers[id] = ch
	h.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			if eventCh, ok := h.subscribers[id]; ok {
				delete(h.subscribers, id)
				close(eventCh)
			}
			h.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-h.done:
			unsubscribe()
		}
	}()

	return ch, unsubscribe
}
