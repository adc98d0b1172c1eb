package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once            sync.Once
	connectAttempts *prom.CounterVec
	connected       prom.Gauge
	firings         *prom.CounterVec
	handlerDuration *prom.HistogramVec
	handlerResults  *prom.CounterVec
	mirrored        *prom.CounterVec
	mirrorErrors    *prom.CounterVec
	handlersLoaded  prom.Gauge
	scriptFailures  prom.Counter
	reloads         prom.Counter
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.connectAttempts = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "ibeventd",
			Name:      "connect_attempts_total",
			Help:      "Gateway connection attempts by result",
		}, []string{"result"})
		pr.connected = prom.NewGauge(prom.GaugeOpts{
			Namespace: "ibeventd",
			Name:      "gateway_connected",
			Help:      "Whether the gateway connection is currently up (1) or down (0)",
		})
		pr.firings = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "ibeventd",
			Name:      "event_firings_total",
			Help:      "Gateway event firings by event name",
		}, []string{"event"})
		pr.handlerDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "ibeventd",
			Name:      "handler_duration_seconds",
			Help:      "Duration of individual handler invocations",
			Buckets:   prom.DefBuckets,
		}, []string{"handler"})
		pr.handlerResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "ibeventd",
			Name:      "handler_results_total",
			Help:      "Handler invocation results by outcome",
		}, []string{"handler", "result"})
		pr.mirrored = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "ibeventd",
			Name:      "mirrored_firings_total",
			Help:      "Event firings forwarded to mirror sinks",
		}, []string{"sink"})
		pr.mirrorErrors = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "ibeventd",
			Name:      "mirror_errors_total",
			Help:      "Mirror sink publish failures",
		}, []string{"sink"})
		pr.handlersLoaded = prom.NewGauge(prom.GaugeOpts{
			Namespace: "ibeventd",
			Name:      "handlers_loaded",
			Help:      "Handlers currently registered for dispatch",
		})
		pr.scriptFailures = prom.NewCounter(prom.CounterOpts{
			Namespace: "ibeventd",
			Name:      "script_load_failures_total",
			Help:      "Handler scripts that failed to load",
		})
		pr.reloads = prom.NewCounter(prom.CounterOpts{
			Namespace: "ibeventd",
			Name:      "handler_reloads_total",
			Help:      "Handler set reloads triggered by path changes",
		})
		reg.MustRegister(pr.connectAttempts, pr.connected, pr.firings,
			pr.handlerDuration, pr.handlerResults, pr.mirrored,
			pr.mirrorErrors, pr.handlersLoaded, pr.scriptFailures, pr.reloads)
	})
	return pr
}

func (p *PrometheusRecorder) IncConnectAttempt(result ResultLabel) {
	if p == nil || p.connectAttempts == nil {
		return
	}
	p.connectAttempts.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) SetConnected(up bool) {
	if p == nil || p.connected == nil {
		return
	}
	v := 0.0
	if up {
		v = 1.0
	}
	p.connected.Set(v)
}

func (p *PrometheusRecorder) IncFiring(event string) {
	if p == nil || p.firings == nil {
		return
	}
	p.firings.WithLabelValues(event).Inc()
}

func (p *PrometheusRecorder) ObserveHandlerDuration(handler string, d time.Duration) {
	if p == nil || p.handlerDuration == nil {
		return
	}
	p.handlerDuration.WithLabelValues(handler).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncHandlerResult(handler string, result ResultLabel) {
	if p == nil || p.handlerResults == nil {
		return
	}
	p.handlerResults.WithLabelValues(handler, string(result)).Inc()
}

func (p *PrometheusRecorder) IncMirrored(sink string) {
	if p == nil || p.mirrored == nil {
		return
	}
	p.mirrored.WithLabelValues(sink).Inc()
}

func (p *PrometheusRecorder) IncMirrorError(sink string) {
	if p == nil || p.mirrorErrors == nil {
		return
	}
	p.mirrorErrors.WithLabelValues(sink).Inc()
}

func (p *PrometheusRecorder) SetHandlersLoaded(n int) {
	if p == nil || p.handlersLoaded == nil {
		return
	}
	p.handlersLoaded.Set(float64(n))
}

func (p *PrometheusRecorder) IncScriptLoadFailure() {
	if p == nil || p.scriptFailures == nil {
		return
	}
	p.scriptFailures.Inc()
}

func (p *PrometheusRecorder) IncReload() {
	if p == nil || p.reloads == nil {
		return
	}
	p.reloads.Inc()
}
