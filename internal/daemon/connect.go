package daemon

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/ibeventd/internal/daemon/events"
	ferrors "git.home.luguber.info/inful/ibeventd/internal/foundation/errors"
	"git.home.luguber.info/inful/ibeventd/internal/gateway"
	"git.home.luguber.info/inful/ibeventd/internal/logfields"
	"git.home.luguber.info/inful/ibeventd/internal/metrics"
)

// ConnState is the connection lifecycle state.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
)

// ConnectionManager drives the bounded connect-retry loop against the
// gateway. A failed attempt is retried after a fixed delay; the delay is
// never slept after the final attempt.
type ConnectionManager struct {
	conn       gateway.Conn
	opts       gateway.ConnectOptions
	maxRetries int
	delay      time.Duration
	bus        *events.Bus
	rec        metrics.Recorder
	state      atomic.Value // ConnState
}

// NewConnectionManager creates a manager for conn. maxRetries is the number
// of retries after the first attempt, so maxRetries+1 attempts total.
func NewConnectionManager(conn gateway.Conn, opts gateway.ConnectOptions, maxRetries int, delay time.Duration, bus *events.Bus, rec metrics.Recorder) *ConnectionManager {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	m := &ConnectionManager{
		conn:       conn,
		opts:       opts,
		maxRetries: maxRetries,
		delay:      delay,
		bus:        bus,
		rec:        rec,
	}
	m.state.Store(StateDisconnected)
	return m
}

// State returns the current connection lifecycle state.
func (m *ConnectionManager) State() ConnState {
	return m.state.Load().(ConnState)
}

// MarkDisconnected records a connection loss observed outside Connect.
func (m *ConnectionManager) MarkDisconnected() {
	m.state.Store(StateDisconnected)
}

// Connect attempts to establish the gateway session, retrying up to the
// configured bound. On success a ConnectionEstablished event is published
// with the attempt count. On exhaustion every attempt has been logged and a
// single connection error is returned.
func (m *ConnectionManager) Connect(ctx context.Context) error {
	m.state.Store(StateConnecting)
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		err := m.conn.Connect(ctx, m.opts)
		if err == nil {
			m.state.Store(StateConnected)
			m.rec.IncConnectAttempt(metrics.ResultSuccess)
			m.rec.SetConnected(true)
			session := uuid.NewString()
			slog.Info("Connected to gateway",
				logfields.Host(m.opts.Host),
				logfields.Port(m.opts.Port),
				logfields.ClientID(m.opts.ClientID),
				logfields.Session(session),
				logfields.Attempts(attempt+1))
			if m.bus != nil {
				if perr := m.bus.Publish(ctx, events.ConnectionEstablished{
					SessionID:   session,
					Addr:        m.opts.Host,
					Attempts:    attempt + 1,
					ConnectedAt: time.Now(),
				}); perr != nil {
					slog.Warn("Failed to publish connection event", logfields.Error(perr))
				}
			}
			return nil
		}

		m.rec.IncConnectAttempt(metrics.ResultError)
		slog.Error("Gateway connect attempt failed",
			logfields.Host(m.opts.Host),
			logfields.Port(m.opts.Port),
			logfields.Attempt(attempt),
			logfields.Error(err))

		if attempt < m.maxRetries {
			if werr := m.wait(ctx); werr != nil {
				m.state.Store(StateDisconnected)
				return werr
			}
		}
	}

	m.state.Store(StateDisconnected)
	return ferrors.ConnectionError("gateway unreachable after all connect attempts").
		WithContext("host", m.opts.Host).
		WithContext("port", m.opts.Port).
		WithContext("attempts", m.maxRetries+1).
		Build()
}

// wait sleeps the fixed retry delay, returning early when ctx is canceled.
func (m *ConnectionManager) wait(ctx context.Context) error {
	if m.delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(m.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ferrors.ConnectionError("connect canceled during retry wait").
			WithCause(ctx.Err()).Build()
	case <-timer.C:
		return nil
	}
}
