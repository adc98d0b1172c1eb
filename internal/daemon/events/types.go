package events

import "time"

// GatewayFiring is the in-process mirror payload for a gateway event firing.
// Every firing of a mirrored gateway event is republished as one of these,
// keyed by the event's name.
type GatewayFiring struct {
	Name    string
	Args    []any
	Fields  map[string]any
	FiredAt time.Time
}

// HandlersChanged is emitted by the handler-path watcher when scripts under a
// search path are created, modified, or removed. Consumers re-run discovery.
type HandlersChanged struct {
	Path      string
	ChangedAt time.Time
}

// ConnectionEstablished is emitted once a gateway connect attempt succeeds.
type ConnectionEstablished struct {
	SessionID   string
	Addr        string
	Attempts    int
	ConnectedAt time.Time
}

// ConnectionLost is emitted when the dispatch loop exits unexpectedly.
// When AutoReconnect is configured the daemon reacts by reconnecting.
type ConnectionLost struct {
	Reason string
	LostAt time.Time
}
