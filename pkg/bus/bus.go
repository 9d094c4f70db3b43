package bus

import (
	"sync"
)

const defaultBufferSize = 100

// Hub fans pipeline lifecycle events out to subscribers. A nil *Hub drops everything.
type Hub struct {
	subscribers      map[uint64]chan Event
	nextSubscriberID uint64

	done      chan struct{}
	closeOnce sync.Once

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[uint64]chan Event),
		done:        make(chan struct{}),
	}
}

// Close stops delivery and closes every subscriber channel.
func (h *Hub) Close() {
	if h == nil {
		return
	}
	h.closeOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		for id, ch := range h.subscribers {
			close(ch)
			delete(h.subscribers, id)
		}
		h.mu.Unlock()
	})
}
