package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/ibeventd/internal/logfields"
)

// Firing is one emission of a named event: the positional payload plus any
// keyword-style fields the gateway attaches.
type Firing struct {
	Name    string
	Args    []any
	Fields  map[string]any
	FiredAt time.Time
}

// Subscriber is a callback attached to an Event. Subscribers run on the
// dispatch goroutine, in attach order.
type Subscriber func(ctx context.Context, f Firing)

// Subscription identifies one attached subscriber so it can be detached
// later without affecting duplicates of the same callback.
type Subscription uint64

// MirrorSink receives a copy of every firing on a mirrored hub, keyed by
// event name. Implementations live in internal/bridge.
type MirrorSink interface {
	// Name identifies the sink in logs.
	Name() string
	// Publish republishes one firing. Errors are logged by the emitter and
	// never reach primary subscribers.
	Publish(ctx context.Context, f Firing) error
}

// Event is a named signal on a gateway connection. Subscribers are invoked
// in attach order; a panicking subscriber is isolated and logged, and does
// not stop delivery to the remaining subscribers.
type Event struct {
	name string
	hub  *Hub

	mu     sync.Mutex
	nextID Subscription
	subs   []subEntry
}

type subEntry struct {
	id Subscription
	fn Subscriber
}

// Name returns the event's name.
func (e *Event) Name() string { return e.name }

// Connect appends fn to the subscriber list and returns its subscription
// token. Duplicate callbacks yield distinct tokens and distinct deliveries.
func (e *Event) Connect(fn Subscriber) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	e.subs = append(e.subs, subEntry{id: e.nextID, fn: fn})
	return e.nextID
}

// DisconnectSub removes the subscriber identified by token. Unknown tokens
// are ignored.
func (e *Event) DisconnectSub(token Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, s := range e.subs {
		if s.id == token {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			return
		}
	}
}

// SubscriberCount returns the number of attached subscribers.
func (e *Event) SubscriberCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

// Emit delivers a firing with positional args only.
func (e *Event) Emit(ctx context.Context, args ...any) {
	e.EmitWithFields(ctx, nil, args...)
}

// EmitWithFields delivers a firing to all primary subscribers in attach
// order, then republishes the identical payload to the hub's mirror sink if
// one is attached. Primary delivery always completes first; a failing mirror
// publish is logged and swallowed.
func (e *Event) EmitWithFields(ctx context.Context, fields map[string]any, args ...any) {
	f := Firing{Name: e.name, Args: args, Fields: fields, FiredAt: time.Now()}

	e.mu.Lock()
	targets := make([]subEntry, len(e.subs))
	copy(targets, e.subs)
	e.mu.Unlock()

	for _, s := range targets {
		e.invoke(ctx, s.fn, f)
	}

	if sink := e.hub.mirrorSink(); sink != nil {
		e.mirror(ctx, sink, f)
	}
}

func (e *Event) invoke(ctx context.Context, fn Subscriber, f Firing) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Event subscriber panicked",
				logfields.Event(e.name), slog.Any("panic", r))
		}
	}()
	fn(ctx, f)
}

func (e *Event) mirror(ctx context.Context, sink MirrorSink, f Firing) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Mirror sink panicked",
				logfields.Event(e.name), logfields.Sink(sink.Name()), slog.Any("panic", r))
		}
	}()
	if err := sink.Publish(ctx, f); err != nil {
		slog.Error("Mirror publish failed",
			logfields.Event(e.name), logfields.Sink(sink.Name()), logfields.Error(err))
	}
}
