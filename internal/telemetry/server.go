package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"botsupervisor/internal/core"
)

// MetricsServer exposes the Prometheus exporter's /metrics endpoint
// (spec.md's Telemetry.MetricsPort), grounded on the teacher's
// internal/infrastructure/metrics/server.go.
type MetricsServer struct {
	port   int
	logger core.ILogger
	srv    *http.Server
}

// NewMetricsServer creates a metrics server bound to port.
func NewMetricsServer(port int, logger core.ILogger) *MetricsServer {
	return &MetricsServer{port: port, logger: logger.WithField("component", "metrics_server")}
}

// Start begins serving /metrics in the background.
func (s *MetricsServer) Start() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{Addr: fmt.Sprintf(":%d", s.port), Handler: mux}

	go func() {
		s.logger.Info("starting metrics server", "port", s.port)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics server failed", "error", err)
		}
	}()
}

// Stop gracefully shuts the metrics server down.
func (s *MetricsServer) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	s.logger.Info("stopping metrics server")
	return s.srv.Shutdown(ctx)
}
