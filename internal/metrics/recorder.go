package metrics

import "time"

// ResultLabel enumerates result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultError   ResultLabel = "error"
	ResultPanic   ResultLabel = "panic"
)

// Recorder defines observability hooks for connection, dispatch and mirror
// activity. Implementations may forward to Prometheus, OpenTelemetry, etc.
// All methods must be safe on the NoopRecorder so injection stays optional.
type Recorder interface {
	IncConnectAttempt(result ResultLabel)
	SetConnected(up bool)
	IncFiring(event string)
	ObserveHandlerDuration(handler string, d time.Duration)
	IncHandlerResult(handler string, result ResultLabel)
	IncMirrored(sink string)
	IncMirrorError(sink string)
	SetHandlersLoaded(n int)
	IncScriptLoadFailure()
	IncReload()
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncConnectAttempt(ResultLabel)                {}
func (NoopRecorder) SetConnected(bool)                            {}
func (NoopRecorder) IncFiring(string)                             {}
func (NoopRecorder) ObserveHandlerDuration(string, time.Duration) {}
func (NoopRecorder) IncHandlerResult(string, ResultLabel)         {}
func (NoopRecorder) IncMirrored(string)                           {}
func (NoopRecorder) IncMirrorError(string)                        {}
func (NoopRecorder) SetHandlersLoaded(int)                        {}
func (NoopRecorder) IncScriptLoadFailure()                        {}
func (NoopRecorder) IncReload()                                   {}
