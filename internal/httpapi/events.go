package httpapi

import (
	"sync"
	"sync/atomic"

	"github.com/ent0n29/talkback/internal/observability"
)

const defaultSubscriberBuffer = 256

// Hub fans pipeline events out to event feed subscribers. Publish never
// blocks: a subscriber whose buffer is full misses the event.
type Hub struct {
	metrics *observability.Metrics
	buffer  int

	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool
}

type subscriber struct {
	events  chan any
	dropped atomic.Int64
}

func NewHub(metrics *observability.Metrics, buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{metrics: metrics, buffer: buffer, subs: make(map[*subscriber]struct{})}
}

func (h *Hub) Publish(event any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		select {
		case sub.events <- event:
		default:
			sub.dropped.Add(1)
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel func must be
// called once; it closes the event channel.
func (h *Hub) Subscribe() (*subscriber, func()) {
	sub := &subscriber{events: make(chan any, h.buffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.events)
		return sub, func() {}
	}
	h.subs[sub] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	h.setSubscribers(n)

	var once sync.Once
	return sub, func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subs[sub]; ok {
				delete(h.subs, sub)
				close(sub.events)
			}
			n := len(h.subs)
			h.mu.Unlock()
			h.setSubscribers(n)
		})
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for sub := range h.subs {
		close(sub.events)
		delete(h.subs, sub)
	}
	h.mu.Unlock()
	h.setSubscribers(0)
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) setSubscribers(n int) {
	if h.metrics == nil {
		return
	}
	h.metrics.EventSubscribers.Set(float64(n))
}
