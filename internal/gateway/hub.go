package gateway

import "sync"

// Hub owns a connection's named events and the optional mirror sink shared
// by all of them. Conn implementations embed or hold one Hub and declare
// their events up front.
type Hub struct {
	mu     sync.RWMutex
	events map[string]*Event
	order  []string
	mirror MirrorSink
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{events: make(map[string]*Event)}
}

// Declare creates (or returns the existing) event under name.
func (h *Hub) Declare(name string) *Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ev, ok := h.events[name]; ok {
		return ev
	}
	ev := &Event{name: name, hub: h}
	h.events[name] = ev
	h.order = append(h.order, name)
	return ev
}

// Event looks up a declared event by name.
func (h *Hub) Event(name string) (*Event, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ev, ok := h.events[name]
	return ev, ok
}

// EventNames returns the declared event names in declaration order.
func (h *Hub) EventNames() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, len(h.order))
	copy(names, h.order)
	return names
}

// SetMirror installs or clears the hub-wide mirror sink. It returns the
// previously installed sink. Policy (warn on double attach, restore on
// detach) lives in internal/bridge; this is the bare state switch.
func (h *Hub) SetMirror(sink MirrorSink) MirrorSink {
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.mirror
	h.mirror = sink
	return prev
}

func (h *Hub) mirrorSink() MirrorSink {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.mirror
}
