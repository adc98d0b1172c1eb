package daemon

import (
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	ferrors "git.home.luguber.info/inful/ibeventd/internal/foundation/errors"
	"git.home.luguber.info/inful/ibeventd/internal/gateway"
	"git.home.luguber.info/inful/ibeventd/internal/logfields"
	"git.home.luguber.info/inful/ibeventd/internal/metrics"
)

// Heartbeat periodically probes the gateway connection and mirrors its state
// into metrics. It is a health observer only; reconnect decisions stay with
// the daemon loop.
type Heartbeat struct {
	scheduler gocron.Scheduler
	conn      gateway.Conn
	rec       metrics.Recorder
}

// NewHeartbeat creates a heartbeat probing conn every interval.
func NewHeartbeat(conn gateway.Conn, interval time.Duration, rec metrics.Recorder) (*Heartbeat, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, ferrors.DaemonError("failed to create heartbeat scheduler").
			WithCause(err).Build()
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}

	hb := &Heartbeat{scheduler: s, conn: conn, rec: rec}
	if _, err := s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(hb.probe),
		gocron.WithName("gateway-heartbeat"),
	); err != nil {
		return nil, ferrors.DaemonError("failed to schedule heartbeat").
			WithCause(err).Build()
	}
	return hb, nil
}

// Start begins the periodic probe.
func (hb *Heartbeat) Start() {
	slog.Info("Starting gateway heartbeat")
	hb.scheduler.Start()
}

// Stop shuts the scheduler down.
func (hb *Heartbeat) Stop() {
	if err := hb.scheduler.Shutdown(); err != nil {
		slog.Error("Error stopping heartbeat scheduler", logfields.Error(err))
	}
}

func (hb *Heartbeat) probe() {
	up := hb.conn.IsConnected()
	hb.rec.SetConnected(up)
	state := "disconnected"
	if up {
		state = "connected"
	}
	slog.Debug("Gateway heartbeat", logfields.State(state))
}
