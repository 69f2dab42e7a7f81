// Package events provides the publish/subscribe channel carrying lifecycle
// events for one run. Handlers observe events synchronously in subscription
// order; channel streams provide a bounded, drop-on-full fan-out for
// long-lived consumers such as SSE connections.
package events

import (
	"sync"
	"time"

	"github.com/probelab/capscan/internal/model"
)

// streamBufferSize is the channel buffer for each stream subscriber.
// Events are dropped for a subscriber that falls this far behind.
const streamBufferSize = 64

// Handler observes events. Handlers run on the publisher's goroutine, so they
// must not block.
type Handler func(model.Event)

// Bus carries the lifecycle events of a single run. It is safe for
// concurrent use.
//
// A closed bus is retained as a marker: Stream on a closed bus returns a
// closed channel instead of blocking forever, mirroring late subscription to
// a finished run.
type Bus struct {
	mu       sync.Mutex
	handlers []Handler
	streams  map[int]chan model.Event
	nextID   int
	closed   bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{streams: make(map[int]chan model.Event)}
}

// Subscribe registers a synchronous handler. Handlers are invoked in
// subscription order for every subsequent event.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Stream returns a channel receiving subsequent events and an unsubscribe
// function. If the bus is already closed, the returned channel is closed.
func (b *Bus) Stream() (<-chan model.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan model.Event, streamBufferSize)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.streams[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.streams, id)
	}
}

// Publish delivers an event to every handler in subscription order, then to
// every stream. Stream delivery is non-blocking; events are dropped for slow
// subscribers. Publishing on a closed bus is a no-op.
func (b *Bus) Publish(e model.Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	for _, h := range b.handlers {
		h(e)
	}
	for _, ch := range b.streams {
		select {
		case ch <- e:
		default:
			// Drop for slow stream subscribers to avoid blocking the run.
		}
	}
}

// Close signals that no more events will be published. All stream channels
// are closed and future Stream calls return a closed channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.streams {
		close(ch)
		delete(b.streams, id)
	}
}
