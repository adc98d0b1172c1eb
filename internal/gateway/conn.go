// Package gateway defines the boundary to the broker gateway client: the
// Conn contract the daemon drives, and the named Event signals handlers
// attach to. The wire protocol behind a Conn is not implemented here.
package gateway

import (
	"context"
	"time"
)

// ConnectOptions carries the full connection configuration for a single
// connect attempt.
type ConnectOptions struct {
	Host     string
	Port     int
	ClientID int
	Timeout  time.Duration
	ReadOnly bool
	Account  string
}

// Conn is the broker gateway client as seen by the daemon. Implementations
// expose their notification channels as named Events on a Hub.
//
// The daemon owns the Conn exclusively; the registry only borrows it while
// binding handlers.
type Conn interface {
	// Connect establishes the session. It returns an error when the gateway
	// cannot be reached or rejects the session.
	Connect(ctx context.Context, opts ConnectOptions) error

	// Disconnect tears the session down.
	Disconnect() error

	// IsConnected reports whether the session is currently established.
	IsConnected() bool

	// Run pumps the dispatch loop, delivering event firings to subscribers.
	// It blocks until the connection drops, a fatal error occurs, or ctx is
	// canceled.
	Run(ctx context.Context) error

	// Event looks up a named event signal. The second result is false when
	// the gateway exposes no event under that name.
	Event(name string) (*Event, bool)
}
