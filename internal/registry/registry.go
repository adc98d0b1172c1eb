// Package registry holds the table of event-name to handler registrations
// and attaches them to a live gateway connection. The registry is an
// explicit instance constructed at startup; registration happens through an
// explicit apply step after script discovery, never as a hidden side effect
// of package loading.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	ferrors "git.home.luguber.info/inful/ibeventd/internal/foundation/errors"
	"git.home.luguber.info/inful/ibeventd/internal/gateway"
	"git.home.luguber.info/inful/ibeventd/internal/logfields"
	"git.home.luguber.info/inful/ibeventd/internal/metrics"
)

// Kind is the execution variant of a handler, chosen explicitly at
// registration time.
type Kind int

const (
	// KindSync handlers run inline on the dispatch goroutine and block
	// event delivery for their full duration.
	KindSync Kind = iota
	// KindAsync handlers run on their own goroutine; they may interleave
	// with later deliveries and must not be assumed complete before the
	// next firing.
	KindAsync
)

func (k Kind) String() string {
	if k == KindAsync {
		return "async"
	}
	return "sync"
}

// Handler is a bound-ready callback: the live connection is prepended to the
// event's own payload when the wrapper fires.
type Handler func(ctx context.Context, conn gateway.Conn, f gateway.Firing) error

// Registration is one handler's entry in the event table. Immutable once
// recorded; destroyed only by Clear.
type Registration struct {
	Event  string
	Name   string // display name, for logs
	Source string // originating script path
	Kind   Kind
	Fn     Handler
}

// LoadResult reports the outcome of loading one handler script.
type LoadResult struct {
	Path          string
	Registrations []Registration
	Err           error
}

// Loader discovers and loads handler scripts from search paths. Implemented
// by internal/script.
type Loader interface {
	Load(ctx context.Context, paths []string) []LoadResult
}

// Registry is the event table. Not safe for concurrent mutation; the daemon
// completes discovery before the dispatch loop starts and seals the registry
// at that point.
type Registry struct {
	mu       sync.Mutex
	table    map[string][]Registration
	order    []string // event names in first-registration order
	sealed   bool
	attached []attachment
	rec      metrics.Recorder
}

type attachment struct {
	event *gateway.Event
	token gateway.Subscription
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		table: make(map[string][]Registration),
		rec:   metrics.NoopRecorder{},
	}
}

// SetRecorder replaces the metrics recorder. Must be called before
// BindToConn so wrappers observe the right sink.
func (r *Registry) SetRecorder(m metrics.Recorder) {
	if m == nil {
		m = metrics.NoopRecorder{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rec = m
}

// Register appends a registration to the event's handler list, preserving
// insertion order. Duplicates are kept: registering the same handler twice
// yields two bindings. Registering on a sealed registry is an error.
func (r *Registry) Register(reg Registration) error {
	if reg.Event == "" {
		return ferrors.ValidationError("registration requires an event name").Build()
	}
	if reg.Fn == nil {
		return ferrors.ValidationError("registration requires a handler func").
			WithContext("event", reg.Event).Build()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return ferrors.DaemonError("registry is sealed").
			WithContext("event", reg.Event).
			WithContext("handler", reg.Name).Build()
	}
	if _, seen := r.table[reg.Event]; !seen {
		r.order = append(r.order, reg.Event)
	}
	r.table[reg.Event] = append(r.table[reg.Event], reg)
	return nil
}

// Clear empties the event table. Existing attachments on a connection are
// unaffected; use Unbind for those.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table = make(map[string][]Registration)
	r.order = nil
}

// Seal marks the registry read-only. Called once the dispatch loop begins.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Unseal reopens the registry for a discovery pass, e.g. a watcher-driven
// reload between dispatch sessions.
func (r *Registry) Unseal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = false
}

// Sealed reports whether the registry rejects further registrations.
func (r *Registry) Sealed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sealed
}

// Len returns the total number of registrations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, regs := range r.table {
		n += len(regs)
	}
	return n
}

// Events returns the registered event names in first-registration order.
func (r *Registry) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// HandlersFor returns the registrations for one event, in insertion order.
func (r *Registry) HandlersFor(event string) []Registration {
	r.mu.Lock()
	defer r.mu.Unlock()
	regs := r.table[event]
	out := make([]Registration, len(regs))
	copy(out, regs)
	return out
}

// DiscoverHandlers clears the table, loads every script under the search
// paths, and applies the registrations each script produced. One line is
// logged per path, loaded or failed. A failing script never aborts the rest.
func (r *Registry) DiscoverHandlers(ctx context.Context, loader Loader, paths []string) []LoadResult {
	r.Clear()

	if len(paths) == 0 {
		slog.Warn("No handler search paths configured")
		return nil
	}

	results := loader.Load(ctx, paths)
	for _, res := range results {
		if res.Err != nil {
			r.rec.IncScriptLoadFailure()
			slog.Error("Failed to load handlers", logfields.Path(res.Path), logfields.Error(res.Err))
			continue
		}
		applied := 0
		for _, reg := range res.Registrations {
			if err := r.Register(reg); err != nil {
				slog.Error("Failed to register handler",
					logfields.Path(res.Path), logfields.Handler(reg.Name), logfields.Error(err))
				continue
			}
			applied++
		}
		slog.Info("Loaded handlers", logfields.Path(res.Path), logfields.Count(applied))
	}
	r.rec.SetHandlersLoaded(r.Len())
	return results
}

// BindToConn attaches every registration to the connection's same-named
// events, in registration order. An event name the connection does not
// expose is logged and skipped whole; an individual attach failure is logged
// with the handler's name and source and does not stop the remaining
// handlers. BindToConn is not idempotent: calling it again without Unbind
// duplicates every subscription.
func (r *Registry) BindToConn(conn gateway.Conn) {
	r.mu.Lock()
	order := make([]string, len(r.order))
	copy(order, r.order)
	r.mu.Unlock()

	for _, name := range order {
		ev, ok := conn.Event(name)
		if !ok {
			slog.Warn("Event not found on connection", logfields.Event(name))
			continue
		}
		for _, reg := range r.HandlersFor(name) {
			if err := r.attachOne(conn, ev, reg); err != nil {
				slog.Error("Error binding handler",
					logfields.Event(name),
					logfields.Handler(reg.Name),
					logfields.Source(reg.Source),
					logfields.Error(err))
				continue
			}
			slog.Info("Bound handler",
				logfields.Event(name),
				logfields.Handler(reg.Name),
				logfields.Source(reg.Source),
				slog.String("kind", reg.Kind.String()))
		}
	}
}

// Unbind detaches exactly the wrappers this registry attached via
// BindToConn. Subscribers attached by anyone else are untouched.
func (r *Registry) Unbind() {
	r.mu.Lock()
	attached := r.attached
	r.attached = nil
	r.mu.Unlock()

	for _, a := range attached {
		a.event.DisconnectSub(a.token)
	}
	if len(attached) > 0 {
		slog.Info("Unbound handlers", logfields.Count(len(attached)))
	}
}

func (r *Registry) attachOne(conn gateway.Conn, ev *gateway.Event, reg Registration) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = ferrors.BindError(fmt.Sprintf("attach panicked: %v", rec)).
				WithContext("event", reg.Event).Build()
		}
	}()

	wrapper := r.makeWrapper(conn, reg)
	token := ev.Connect(wrapper)

	r.mu.Lock()
	r.attached = append(r.attached, attachment{event: ev, token: token})
	r.mu.Unlock()
	return nil
}

// makeWrapper builds the bound subscriber: the connection is prepended as
// the handler's first argument. Sync handlers run inline; async handlers are
// spawned on their own goroutine.
func (r *Registry) makeWrapper(conn gateway.Conn, reg Registration) gateway.Subscriber {
	run := func(ctx context.Context, f gateway.Firing) {
		start := time.Now()
		defer func() {
			r.rec.ObserveHandlerDuration(reg.Name, time.Since(start))
			if rec := recover(); rec != nil {
				r.rec.IncHandlerResult(reg.Name, metrics.ResultPanic)
				slog.Error("Handler panicked",
					logfields.Event(reg.Event),
					logfields.Handler(reg.Name),
					logfields.Source(reg.Source),
					slog.Any("panic", rec))
			}
		}()
		if err := reg.Fn(ctx, conn, f); err != nil {
			r.rec.IncHandlerResult(reg.Name, metrics.ResultError)
			slog.Error("Handler failed",
				logfields.Event(reg.Event),
				logfields.Handler(reg.Name),
				logfields.Source(reg.Source),
				logfields.Error(err))
			return
		}
		r.rec.IncHandlerResult(reg.Name, metrics.ResultSuccess)
	}
	if reg.Kind == KindAsync {
		return func(ctx context.Context, f gateway.Firing) {
			go run(ctx, f)
		}
	}
	return run
}
