// Package metrics provides observability hooks for the event daemon.
//
// All components accept the Recorder interface and default to NoopRecorder,
// so metrics stay optional without nil checks at call sites. When metrics
// are enabled the daemon swaps in PrometheusRecorder and serves the
// registry over HTTP.
package metrics
