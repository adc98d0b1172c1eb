package bridge

import (
	"context"

	"git.home.luguber.info/inful/ibeventd/internal/daemon/events"
	"git.home.luguber.info/inful/ibeventd/internal/gateway"
)

// BusSink republishes firings onto the daemon's in-process bus as
// events.GatewayFiring values. Subscribers filter on the Name field.
type BusSink struct {
	bus *events.Bus
}

// NewBusSink creates a sink targeting the given bus.
func NewBusSink(bus *events.Bus) *BusSink {
	return &BusSink{bus: bus}
}

// Name implements gateway.MirrorSink.
func (s *BusSink) Name() string { return "bus" }

// Publish implements gateway.MirrorSink.
func (s *BusSink) Publish(ctx context.Context, f gateway.Firing) error {
	return s.bus.Publish(ctx, events.GatewayFiring{
		Name:    f.Name,
		Args:    f.Args,
		Fields:  f.Fields,
		FiredAt: f.FiredAt,
	})
}

var _ gateway.MirrorSink = (*BusSink)(nil)
