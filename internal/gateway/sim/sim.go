// Package sim provides a simulated broker gateway for development and tests.
// It implements gateway.Conn without any wire protocol: connect attempts can
// be scripted to fail, and Run emits synthetic market events on a timer.
package sim

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	ferrors "git.home.luguber.info/inful/ibeventd/internal/foundation/errors"
	"git.home.luguber.info/inful/ibeventd/internal/gateway"
	"git.home.luguber.info/inful/ibeventd/internal/logfields"
)

// Event names the simulated gateway declares. They follow the naming of the
// broker client's signal surface so handler scripts port over unchanged.
const (
	EventConnected    = "connectedEvent"
	EventDisconnected = "disconnectedEvent"
	EventBarUpdate    = "barUpdateEvent"
	EventPendingTick  = "pendingTickersEvent"
	EventError        = "errorEvent"
)

// Option configures a Gateway.
type Option func(*Gateway)

// WithConnectFailures makes the first n connect attempts fail.
func WithConnectFailures(n int) Option {
	return func(g *Gateway) { g.failRemaining = int32(n) }
}

// WithTickInterval sets the synthetic event cadence (default 1s).
func WithTickInterval(d time.Duration) Option {
	return func(g *Gateway) { g.tickInterval = d }
}

// WithDisconnectError makes Disconnect return the given error, for
// exercising teardown-failure paths.
func WithDisconnectError(err error) Option {
	return func(g *Gateway) { g.disconnectErr = err }
}

// Gateway is a scripted in-process stand-in for the broker gateway client.
type Gateway struct {
	hub *gateway.Hub

	failRemaining int32
	tickInterval  time.Duration
	disconnectErr error

	mu        sync.Mutex
	connected bool
	sessionID string
	stop      chan struct{}

	attempts atomic.Int32
}

// New creates a simulated gateway with the standard event set declared.
func New(opts ...Option) *Gateway {
	g := &Gateway{
		hub:          gateway.NewHub(),
		tickInterval: time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	for _, name := range []string{
		EventConnected, EventDisconnected, EventBarUpdate, EventPendingTick, EventError,
	} {
		g.hub.Declare(name)
	}
	return g
}

// Hub exposes the event hub, e.g. for attaching a mirror sink.
func (g *Gateway) Hub() *gateway.Hub { return g.hub }

// ConnectAttempts reports how many connect attempts were made.
func (g *Gateway) ConnectAttempts() int { return int(g.attempts.Load()) }

// Connect implements gateway.Conn. Scripted failures are consumed first.
func (g *Gateway) Connect(ctx context.Context, opts gateway.ConnectOptions) error {
	g.attempts.Add(1)
	if err := ctx.Err(); err != nil {
		return err
	}
	if atomic.AddInt32(&g.failRemaining, -1) >= 0 {
		return ferrors.ConnectionError("simulated connect refused").
			WithContext("host", opts.Host).
			WithContext("port", opts.Port).
			Build()
	}

	g.mu.Lock()
	g.connected = true
	g.sessionID = uuid.NewString()
	g.stop = make(chan struct{})
	session := g.sessionID
	g.mu.Unlock()

	slog.Debug("Simulated gateway connected",
		logfields.Host(opts.Host), logfields.Port(opts.Port), logfields.Session(session))

	if ev, ok := g.hub.Event(EventConnected); ok {
		ev.Emit(ctx)
	}
	return nil
}

// Disconnect implements gateway.Conn.
func (g *Gateway) Disconnect() error {
	g.mu.Lock()
	wasConnected := g.connected
	g.connected = false
	if g.stop != nil {
		close(g.stop)
		g.stop = nil
	}
	g.mu.Unlock()

	if wasConnected {
		if ev, ok := g.hub.Event(EventDisconnected); ok {
			ev.Emit(context.Background())
		}
	}
	return g.disconnectErr
}

// IsConnected implements gateway.Conn.
func (g *Gateway) IsConnected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connected
}

// Event implements gateway.Conn.
func (g *Gateway) Event(name string) (*gateway.Event, bool) {
	return g.hub.Event(name)
}

// Run implements gateway.Conn: it emits a synthetic bar and ticker firing
// every tick interval until the context is canceled or Disconnect is called.
func (g *Gateway) Run(ctx context.Context) error {
	g.mu.Lock()
	stop := g.stop
	g.mu.Unlock()
	if stop == nil {
		return ferrors.ConnectionError("run called while disconnected").Build()
	}

	bars, _ := g.hub.Event(EventBarUpdate)
	ticks, _ := g.hub.Event(EventPendingTick)

	ticker := time.NewTicker(g.tickInterval)
	defer ticker.Stop()

	seq := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stop:
			return nil
		case now := <-ticker.C:
			seq++
			price := 150.0 + 5.0*math.Sin(float64(seq)/8.0)
			bars.EmitWithFields(ctx,
				map[string]any{"hasNewBar": true},
				map[string]any{
					"time":  now.UTC().Format(time.RFC3339),
					"open":  price,
					"close": price + 0.25,
				})
			ticks.Emit(ctx, map[string]any{
				"symbol": "USDJPY",
				"last":   price,
				"seq":    seq,
			})
		}
	}
}

var _ gateway.Conn = (*Gateway)(nil)
