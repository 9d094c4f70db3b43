package bus

import (
	"context"
	"testing"
	"time"
)

func TestEventFanout(t *testing.T) {
	h := NewHub()
	t.Cleanup(h.Close)

	ctx := context.Background()
	eventsA, unsubA := h.SubscribeEvents(ctx, 1)
	defer unsubA()
	eventsB, unsubB := h.SubscribeEvents(ctx, 1)
	defer unsubB()

	event := Event{Type: EventJobQueued, Key: "abc123"}
	if ok := h.PublishEvent(ctx, event); !ok {
		t.Fatal("expected event publish to succeed")
	}

	for name, events := range map[string]<-chan Event{"A": eventsA, "B": eventsB} {
		select {
		case got := <-events:
			if got.Type != EventJobQueued {
				t.Fatalf("subscriber %s event type = %q, want %q", name, got.Type, EventJobQueued)
			}
			if got.At.IsZero() {
				t.Fatalf("subscriber %s expected timestamp to be filled", name)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("subscriber %s did not receive event", name)
		}
	}
}

func TestSlowSubscriberDoesNotBlockPublishEvent(t *testing.T) {
	h := NewHub()
	t.Cleanup(h.Close)

	ctx := context.Background()
	events, unsubscribe := h.SubscribeEvents(ctx, 1)
	defer unsubscribe()

	if ok := h.PublishEvent(ctx, Event{Type: EventJobQueued}); !ok {
		t.Fatal("expected first event publish to succeed")
	}

	start := time.Now()
	if ok := h.PublishEvent(ctx, Event{Type: EventJobCompleted}); !ok {
		t.Fatal("expected second event publish to succeed")
	}

	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("publish event blocked on slow subscriber")
	}

	select {
	case <-events:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected at least one event")
	}
}

func TestUnsubscribeStopsEvents(t *testing.T) {
	h := NewHub()
	t.Cleanup(h.Close)

	ctx := context.Background()
	events, unsubscribe := h.SubscribeEvents(ctx, 1)
	unsubscribe()

	if ok := h.PublishEvent(ctx, Event{Type: EventJobQueued}); !ok {
		t.Fatal("expected event publish to succeed")
	}

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected closed event channel")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected event channel close after unsubscribe")
	}
}

func TestCloseStopsPublishing(t *testing.T) {
	h := NewHub()

	events, _ := h.SubscribeEvents(context.Background(), 1)
	h.Close()

	if ok := h.PublishEvent(context.Background(), Event{Type: EventJobQueued}); ok {
		t.Fatal("expected publish to fail after close")
	}

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected event channel to be closed")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("event subscription did not unblock after close")
	}
}

func TestNilHubDropsEvents(t *testing.T) {
	var h *Hub
	if ok := h.PublishEvent(context.Background(), Event{Type: EventCacheHit}); ok {
		t.Fatal("expected nil hub to drop events")
	}
}

func TestIncomingEventHasPayload(t *testing.T) {
	if (IncomingEvent{}).HasPayload() {
		t.Fatal("expected empty event to have no payload")
	}
	if !(IncomingEvent{Text: "©"}).HasPayload() {
		t.Fatal("expected text payload")
	}
	if !(IncomingEvent{Sticker: &Sticker{UniqueID: "abc123"}}).HasPayload() {
		t.Fatal("expected sticker payload")
	}
}

func TestChatHandleString(t *testing.T) {
	h := ChatHandle{Channel: "telegram", ChatID: -42}
	if got := h.String(); got != "telegram:-42" {
		t.Fatalf("String = %q, want %q", got, "telegram:-42")
	}
}
