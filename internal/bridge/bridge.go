// Package bridge mirrors gateway event firings onto a secondary
// publish/subscribe channel keyed by event name. The emitter invokes the
// mirror sink directly after primary delivery; nothing in the gateway
// client's internals is rewritten at runtime.
package bridge

import (
	"log/slog"
	"sync"

	"git.home.luguber.info/inful/ibeventd/internal/gateway"
	"git.home.luguber.info/inful/ibeventd/internal/logfields"
)

// Bridge manages the mirror sink on a gateway hub. Attach and Detach are
// idempotent: a second Attach without an intervening Detach is a logged
// no-op, as is Detach while nothing is attached. Detach restores plain
// emission exactly.
type Bridge struct {
	hub *gateway.Hub

	mu       sync.Mutex
	attached bool
	sink     gateway.MirrorSink
}

// New creates a bridge for the given hub. No sink is attached yet.
func New(hub *gateway.Hub) *Bridge {
	return &Bridge{hub: hub}
}

// Attach installs sink as the hub's mirror. Every subsequent firing on the
// hub is republished to the sink after its primary subscribers ran.
func (b *Bridge) Attach(sink gateway.MirrorSink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.attached {
		slog.Warn("Event bridge already attached", logfields.Sink(b.sink.Name()))
		return
	}
	b.hub.SetMirror(sink)
	b.sink = sink
	b.attached = true
	slog.Info("Event bridge attached", logfields.Sink(sink.Name()))
}

// Detach removes the mirror sink; subsequent firings reach only primary
// subscribers.
func (b *Bridge) Detach() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		slog.Warn("Event bridge not attached")
		return
	}
	b.hub.SetMirror(nil)
	slog.Info("Event bridge detached", logfields.Sink(b.sink.Name()))
	b.sink = nil
	b.attached = false
}

// Attached reports whether a sink is currently installed.
func (b *Bridge) Attached() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attached
}
