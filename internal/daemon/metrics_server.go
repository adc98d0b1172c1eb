package daemon

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/ibeventd/internal/logfields"
	"git.home.luguber.info/inful/ibeventd/internal/metrics"
)

// MetricsServer exposes the Prometheus registry over HTTP on /metrics.
type MetricsServer struct {
	srv *http.Server
}

// NewMetricsServer creates a server for the given listen address and registry.
func NewMetricsServer(listen string, reg *prom.Registry) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(reg))
	return &MetricsServer{
		srv: &http.Server{
			Addr:              listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start begins serving in the background.
func (ms *MetricsServer) Start() {
	slog.Info("Starting metrics server", slog.String("listen", ms.srv.Addr))
	go func() {
		if err := ms.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", logfields.Error(err))
		}
	}()
}

// Stop shuts the server down gracefully.
func (ms *MetricsServer) Stop(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := ms.srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Error stopping metrics server", logfields.Error(err))
	}
}
