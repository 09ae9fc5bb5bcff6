package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"skillup/core"
)

type DispatchMode int

const (
	DispatchSync DispatchMode = iota
	DispatchAsync
)

const (
	asyncQueueSize = 2048
	asyncWorkers   = 4
)

type subscription struct {
	id int64
	fn func(context.Context, core.Event)
}

// BusStats counts events seen by an EventBus since it was created.
type BusStats struct {
	Published int64 `json:"published"`
	Delivered int64 `json:"delivered"`
	Dropped   int64 `json:"dropped"`
	Panics    int64 `json:"handler_panics"`
}

// EventBus fans progress events out to subscribers in sync or async mode.
// Engine state never depends on delivery: a full queue or a closed bus drops
// the event, and a panicking handler is logged and skipped.
type EventBus struct {
	mode   DispatchMode
	logger *slog.Logger

	mu     sync.RWMutex
	subs   map[core.EventType]map[int64]subscription
	nextID int64

	// closeMu guards queue against sends after Close.
	closeMu sync.RWMutex
	closed  bool
	queue   chan core.Event
	workers sync.WaitGroup
	once    sync.Once

	published atomic.Int64
	delivered atomic.Int64
	dropped   atomic.Int64
	panics    atomic.Int64
}

// ParseDispatchMode maps "sync" and "async" to a DispatchMode.
func ParseDispatchMode(s string) (DispatchMode, error) {
	switch s {
	case "sync":
		return DispatchSync, nil
	case "async", "":
		return DispatchAsync, nil
	}
	return DispatchSync, fmt.Errorf("unknown dispatch mode %q", s)
}

func NewEventBus(mode DispatchMode) *EventBus {
	eb := &EventBus{
		mode:   mode,
		logger: slog.Default(),
		subs:   make(map[core.EventType]map[int64]subscription),
	}
	if mode == DispatchAsync {
		eb.queue = make(chan core.Event, asyncQueueSize)
		eb.workers.Add(asyncWorkers)
		for i := 0; i < asyncWorkers; i++ {
			go func() {
				defer eb.workers.Done()
				for ev := range eb.queue {
					eb.dispatch(context.Background(), ev)
				}
			}()
		}
	}
	return eb
}

// SetLogger replaces the logger used for handler panics.
func (e *EventBus) SetLogger(l *slog.Logger) {
	if e != nil && l != nil {
		e.logger = l
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
// Safe to call more than once and on a nil bus.
func (e *EventBus) Close() {
	if e == nil {
		return
	}
	e.once.Do(func() {
		e.closeMu.Lock()
		e.closed = true
		if e.queue != nil {
			close(e.queue)
		}
		e.closeMu.Unlock()
		e.workers.Wait()
	})
}

// Subscribe registers a handler for an event type. Returns unsubscribe func.
func (e *EventBus) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	if e.subs[typ] == nil {
		e.subs[typ] = make(map[int64]subscription)
	}
	e.subs[typ][id] = subscription{id: id, fn: handler}
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs[typ], id)
	}
}

// Publish sends an event to subscribers. A nil bus drops the event.
func (e *EventBus) Publish(ctx context.Context, ev core.Event) {
	if e == nil {
		return
	}
	e.published.Add(1)

	e.closeMu.RLock()
	if e.closed {
		e.closeMu.RUnlock()
		e.dropped.Add(1)
		return
	}
	if e.mode != DispatchAsync {
		e.closeMu.RUnlock()
		e.dispatch(ctx, ev)
		return
	}
	select {
	case e.queue <- ev:
		e.closeMu.RUnlock()
	default:
		e.closeMu.RUnlock()
		e.dropped.Add(1)
		e.logger.Warn("event queue full, dropping event",
			slog.String("type", string(ev.Type)), slog.Int64("learner_id", int64(ev.LearnerID)))
	}
}

// Stats returns the bus counters. A nil bus reports zeros.
func (e *EventBus) Stats() BusStats {
	if e == nil {
		return BusStats{}
	}
	return BusStats{
		Published: e.published.Load(),
		Delivered: e.delivered.Load(),
		Dropped:   e.dropped.Load(),
		Panics:    e.panics.Load(),
	}
}

func (e *EventBus) dispatch(ctx context.Context, ev core.Event) {
	e.mu.RLock()
	handlers := make([]func(context.Context, core.Event), 0, len(e.subs[ev.Type]))
	for _, s := range e.subs[ev.Type] {
		handlers = append(handlers, s.fn)
	}
	e.mu.RUnlock()
	for _, h := range handlers {
		e.deliver(ctx, ev, h)
	}
}

func (e *EventBus) deliver(ctx context.Context, ev core.Event, h func(context.Context, core.Event)) {
	defer func() {
		if r := recover(); r != nil {
			e.panics.Add(1)
			e.logger.Error("event handler panicked",
				slog.String("type", string(ev.Type)),
				slog.Int64("learner_id", int64(ev.LearnerID)),
				slog.Any("panic", r))
		}
	}()
	h(ctx, ev)
	e.delivered.Add(1)
}
