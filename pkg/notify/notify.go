// Package notify fans out final scan verdicts to interested parties: the
// history store, the log, and any live subscribers (the stats stream, a UI
// websocket). Delivery to subscribers is best-effort; a slow consumer loses
// events rather than stalling the scan path.
package notify

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/phishguard/phishguard/pkg/threat"
)

const defaultBuffer = 64

// Sink receives every published verdict synchronously. The history store
// implements this.
type Sink interface {
	Publish(result threat.ScanResult)
}

// Hub distributes verdicts. Safe for concurrent use.
type Hub struct {
	mu    sync.Mutex
	subs  map[int]chan threat.ScanResult
	next  int
	sinks []Sink

	published atomic.Int64
	dropped   atomic.Int64
}

// NewHub creates a hub delivering to the given sinks in order.
func NewHub(sinks ...Sink) *Hub {
	return &Hub{
		subs:  make(map[int]chan threat.ScanResult),
		sinks: sinks,
	}
}

// Publish delivers a verdict to every sink and subscriber. Blocked verdicts
// are logged at warning visibility so an operator sees them without a
// subscriber attached.
func (h *Hub) Publish(result threat.ScanResult) {
	h.published.Add(1)

	if result.Blocked {
		log.Printf("[notify] threat blocked: %s (level=%s conf=%.2f source=%s)",
			result.URL, result.Level, result.Confidence, result.Source)
	}

	for _, s := range h.sinks {
		s.Publish(result)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- result:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribe registers a buffered listener. The returned cancel func must be
// called to release the subscription; it closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan threat.ScanResult, func()) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	ch := make(chan threat.ScanResult, buffer)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Stats reports delivery counters.
func (h *Hub) Stats() (published, dropped int64, subscribers int) {
	h.mu.Lock()
	subscribers = len(h.subs)
	h.mu.Unlock()
	return h.published.Load(), h.dropped.Load(), subscribers
}
