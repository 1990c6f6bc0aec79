package engine

import (
	"context"
	"sync"
	"time"

	"progresskit/core"
)

// DispatchMode selects how the bus delivers events to subscribers.
type DispatchMode int

const (
	DispatchSync DispatchMode = iota
	DispatchAsync
)

type subscription struct {
	id  int64
	typ core.EventType
	fn  func(context.Context, core.Event)
}

// EventBus provides thread-safe pub/sub with sync and async dispatch.
// Publication is fire-and-forget: the bus never waits on or retries a
// failing subscriber, and a full async queue drops events.
type EventBus struct {
	mode    DispatchMode
	mu      sync.RWMutex
	subs    map[core.EventType]map[int64]subscription
	nextID  int64
	queue   chan core.Event
	workers int
	ctx     context.Context
	cancel  context.CancelFunc
}

// BusOption tunes EventBus construction.
type BusOption func(*EventBus)

// WithQueueSize sets the async queue capacity.
func WithQueueSize(n int) BusOption {
	return func(b *EventBus) {
		if n > 0 {
			b.queue = make(chan core.Event, n)
		}
	}
}

// WithWorkers sets the async worker count.
func WithWorkers(n int) BusOption {
	return func(b *EventBus) {
		if n > 0 {
			b.workers = n
		}
	}
}

func NewEventBus(mode DispatchMode, opts ...BusOption) *EventBus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &EventBus{
		mode:    mode,
		subs:    make(map[core.EventType]map[int64]subscription),
		queue:   make(chan core.Event, 2048),
		workers: 4,
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, o := range opts {
		o(b)
	}
	if mode == DispatchAsync {
		b.startWorkers()
	}
	return b
}

func (b *EventBus) startWorkers() {
	for i := 0; i < b.workers; i++ {
		go func() {
			for {
				select {
				case ev := <-b.queue:
					b.dispatch(context.Background(), ev)
				case <-b.ctx.Done():
					return
				}
			}
		}()
	}
}

// Close stops async workers.
func (b *EventBus) Close() {
	b.cancel()
	// allow workers to drain briefly
	time.Sleep(10 * time.Millisecond)
}

// Subscribe registers a handler for an event type. Returns unsubscribe func.
func (b *EventBus) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	if b.subs[typ] == nil {
		b.subs[typ] = make(map[int64]subscription)
	}
	b.subs[typ][id] = subscription{id: id, typ: typ, fn: handler}
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if m := b.subs[typ]; m != nil {
			delete(m, id)
		}
	}
}

// Publish sends an event to subscribers.
func (b *EventBus) Publish(ctx context.Context, ev core.Event) {
	if b.mode == DispatchAsync {
		select {
		case b.queue <- ev:
		default:
			// queue full: drop rather than block the caller
		}
		return
	}
	b.dispatch(ctx, ev)
}

func (b *EventBus) dispatch(ctx context.Context, ev core.Event) {
	b.mu.RLock()
	subs := b.subs[ev.Type]
	// copy to avoid holding the lock during callbacks
	handlers := make([]func(context.Context, core.Event), 0, len(subs))
	for _, s := range subs {
		handlers = append(handlers, s.fn)
	}
	b.mu.RUnlock()
	for _, h := range handlers {
		h(ctx, ev)
	}
}
