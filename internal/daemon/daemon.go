// Package daemon wires the gateway connection, handler registry, script
// loader, and event bridge into one long-running service with bounded
// connect retry and optional watcher-driven handler reload.
package daemon

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/ibeventd/internal/bridge"
	"git.home.luguber.info/inful/ibeventd/internal/config"
	"git.home.luguber.info/inful/ibeventd/internal/daemon/events"
	ferrors "git.home.luguber.info/inful/ibeventd/internal/foundation/errors"
	"git.home.luguber.info/inful/ibeventd/internal/gateway"
	"git.home.luguber.info/inful/ibeventd/internal/logfields"
	"git.home.luguber.info/inful/ibeventd/internal/metrics"
	"git.home.luguber.info/inful/ibeventd/internal/registry"
	"git.home.luguber.info/inful/ibeventd/internal/script"
)

// Status represents the current state of the daemon.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusError    Status = "error"
)

// Client is the gateway as the daemon drives it: the connection plus the
// hub carrying its named events.
type Client interface {
	gateway.Conn
	Hub() *gateway.Hub
}

// Daemon is the main service. Construct with New, drive with Run, stop with
// Stop or by canceling Run's context.
type Daemon struct {
	cfg    *config.Config
	client Client
	reg    *registry.Registry
	loader *script.Loader
	bus    *events.Bus
	bridge *bridge.Bridge
	rec    metrics.Recorder

	status    atomic.Value // Status
	startTime time.Time
	stopChan  chan struct{}
	stopOnce  sync.Once
	cancel    context.CancelFunc

	metricsSrv *MetricsServer
	natsSink   *bridge.NATSSink
	watcher    *HandlerWatcher
	heartbeat  *Heartbeat
}

// New creates a daemon around the given gateway client.
func New(cfg *config.Config, client Client) (*Daemon, error) {
	if cfg == nil {
		return nil, ferrors.ConfigError("configuration is required").Build()
	}
	if client == nil {
		return nil, ferrors.DaemonError("gateway client is required").Build()
	}

	d := &Daemon{
		cfg:      cfg,
		client:   client,
		reg:      registry.New(),
		loader:   script.NewLoader(),
		bus:      events.NewBus(),
		bridge:   bridge.New(client.Hub()),
		rec:      metrics.NoopRecorder{},
		stopChan: make(chan struct{}),
	}

	if cfg.Metrics.Enabled {
		promReg := prom.NewRegistry()
		d.rec = metrics.NewPrometheusRecorder(promReg)
		d.metricsSrv = NewMetricsServer(cfg.Metrics.Listen, promReg)
	}
	d.reg.SetRecorder(d.rec)
	d.status.Store(StatusStopped)
	return d, nil
}

// Status returns the daemon's current lifecycle state.
func (d *Daemon) Status() Status {
	return d.status.Load().(Status)
}

// Uptime reports how long the daemon has been running.
func (d *Daemon) Uptime() time.Duration {
	if d.startTime.IsZero() {
		return 0
	}
	return time.Since(d.startTime)
}

// Registry exposes the handler table, e.g. for status queries.
func (d *Daemon) Registry() *registry.Registry { return d.reg }

// Bus exposes the in-process event bus for additional subscribers.
func (d *Daemon) Bus() *events.Bus { return d.bus }

// Run connects to the gateway, discovers and binds handlers, attaches the
// configured mirror, and pumps the dispatch loop until the context is
// canceled, Stop is called, or an unrecoverable error occurs. When
// auto-reconnect is configured a dropped connection restarts the connect
// loop instead of ending the run.
func (d *Daemon) Run(ctx context.Context) error {
	d.status.Store(StatusStarting)
	d.startTime = time.Now()

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	defer cancel()

	if d.metricsSrv != nil {
		d.metricsSrv.Start()
		defer d.metricsSrv.Stop(context.Background())
	}

	cm := NewConnectionManager(d.client, d.connectOptions(),
		d.cfg.Handler.MaxRetries, d.cfg.Handler.RetryDelay, d.bus, d.rec)
	if err := cm.Connect(ctx); err != nil {
		d.status.Store(StatusError)
		return err
	}
	defer d.teardown()

	d.reg.DiscoverHandlers(ctx, d.loader, d.cfg.Handler.Paths)
	d.reg.BindToConn(d.client)
	d.reg.Seal()
	d.loader.RunSetups(ctx, d.client)

	if err := d.attachMirror(); err != nil {
		d.status.Store(StatusError)
		return err
	}

	stopReload := d.startReloadListener(ctx)
	defer stopReload()

	if d.cfg.Handler.Watch && len(d.cfg.Handler.Paths) > 0 {
		w, err := NewHandlerWatcher(d.cfg.Handler.Paths, d.bus)
		if err != nil {
			slog.Error("Failed to create handler watcher", logfields.Error(err))
		} else if err := w.Start(ctx); err != nil {
			slog.Error("Failed to start handler watcher", logfields.Error(err))
			w.Stop()
		} else {
			d.watcher = w
			defer w.Stop()
		}
	}

	if d.cfg.Heartbeat.Enabled {
		hb, err := NewHeartbeat(d.client, d.cfg.Heartbeat.Interval, d.rec)
		if err != nil {
			slog.Error("Failed to create heartbeat", logfields.Error(err))
		} else {
			hb.Start()
			d.heartbeat = hb
			defer hb.Stop()
		}
	}

	d.status.Store(StatusRunning)
	slog.Info("Daemon running",
		logfields.Host(d.cfg.Gateway.Host),
		logfields.Port(d.cfg.Gateway.Port),
		logfields.Count(d.reg.Len()))

	for {
		err := d.client.Run(ctx)
		if ctx.Err() != nil || d.stopRequested() {
			return nil
		}

		cm.MarkDisconnected()
		d.rec.SetConnected(false)
		reason := "dispatch loop exited"
		if err != nil {
			reason = err.Error()
		}
		slog.Warn("Gateway connection lost", slog.String("reason", reason))
		if perr := d.bus.Publish(ctx, events.ConnectionLost{
			Reason: reason,
			LostAt: time.Now(),
		}); perr != nil {
			slog.Warn("Failed to publish connection loss", logfields.Error(perr))
		}

		if !d.cfg.Handler.AutoReconnect {
			d.status.Store(StatusError)
			return ferrors.ConnectionError("gateway connection lost").
				WithContext("reason", reason).Build()
		}

		slog.Info("Reconnecting to gateway")
		if cerr := cm.Connect(ctx); cerr != nil {
			if ctx.Err() != nil || d.stopRequested() {
				return nil
			}
			d.status.Store(StatusError)
			return cerr
		}
	}
}

// Stop requests a graceful shutdown. Safe to call more than once and from
// any goroutine.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() {
		d.status.Store(StatusStopping)
		slog.Info("Stopping daemon")
		close(d.stopChan)
		if d.cancel != nil {
			d.cancel()
		}
	})
}

func (d *Daemon) stopRequested() bool {
	select {
	case <-d.stopChan:
		return true
	default:
		return false
	}
}

// teardown releases every resource the run acquired. Disconnect failures
// are logged, never propagated.
func (d *Daemon) teardown() {
	d.status.Store(StatusStopping)

	if d.bridge.Attached() {
		d.bridge.Detach()
	}
	if d.natsSink != nil {
		d.natsSink.Close()
		d.natsSink = nil
	}

	d.reg.Unbind()
	d.loader.Close()

	if err := d.client.Disconnect(); err != nil {
		slog.Warn("Error disconnecting from gateway", logfields.Error(err))
	}
	d.rec.SetConnected(false)

	d.bus.Close()
	d.status.Store(StatusStopped)
	slog.Info("Daemon stopped")
}

func (d *Daemon) connectOptions() gateway.ConnectOptions {
	g := d.cfg.Gateway
	return gateway.ConnectOptions{
		Host:     g.Host,
		Port:     g.Port,
		ClientID: g.ClientID,
		Timeout:  g.Timeout,
		ReadOnly: g.ReadOnly,
		Account:  g.Account,
	}
}

// attachMirror installs the configured mirror sink on the gateway hub.
func (d *Daemon) attachMirror() error {
	switch d.cfg.Mirror.Mode {
	case config.MirrorOff:
		return nil
	case config.MirrorBus:
		d.bridge.Attach(instrumentSink(bridge.NewBusSink(d.bus), d.rec))
		return nil
	case config.MirrorNATS:
		sink, err := bridge.NewNATSSink(d.cfg.Mirror.NATSURL, d.cfg.Mirror.SubjectPrefix)
		if err != nil {
			return err
		}
		d.natsSink = sink
		d.bridge.Attach(instrumentSink(sink, d.rec))
		return nil
	default:
		return ferrors.ConfigError("unknown mirror mode").
			WithContext("mode", string(d.cfg.Mirror.Mode)).Build()
	}
}

// startReloadListener reacts to HandlersChanged events by re-running
// discovery and rebinding. The returned func cancels the subscription.
func (d *Daemon) startReloadListener(ctx context.Context) func() {
	ch, cancel := events.Subscribe[events.HandlersChanged](d.bus, 8)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				d.reloadHandlers(ctx, evt.Path)
			}
		}
	}()
	return cancel
}

// reloadHandlers swaps the handler set: old bindings are detached before
// discovery runs, so a firing during the swap reaches either the old set or
// the new one, never both.
func (d *Daemon) reloadHandlers(ctx context.Context, changed string) {
	slog.Info("Handler scripts changed, reloading", logfields.Path(changed))
	d.reg.Unseal()
	d.reg.Unbind()
	d.reg.DiscoverHandlers(ctx, d.loader, d.cfg.Handler.Paths)
	d.reg.BindToConn(d.client)
	d.reg.Seal()
	d.loader.RunSetups(ctx, d.client)
	d.rec.IncReload()
}

// instrumentedSink wraps a mirror sink with firing and outcome counters.
type instrumentedSink struct {
	inner gateway.MirrorSink
	rec   metrics.Recorder
}

func instrumentSink(inner gateway.MirrorSink, rec metrics.Recorder) gateway.MirrorSink {
	return instrumentedSink{inner: inner, rec: rec}
}

func (s instrumentedSink) Name() string { return s.inner.Name() }

func (s instrumentedSink) Publish(ctx context.Context, f gateway.Firing) error {
	s.rec.IncFiring(f.Name)
	if err := s.inner.Publish(ctx, f); err != nil {
		s.rec.IncMirrorError(s.inner.Name())
		return err
	}
	s.rec.IncMirrored(s.inner.Name())
	return nil
}
