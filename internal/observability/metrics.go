// Package observability exposes the connector's Prometheus metrics and the
// side HTTP server that serves them.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// ActionRuns counts action executions by action id and outcome
	// (success, error).
	ActionRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connector_action_runs_total",
		Help: "Action executions by action and outcome.",
	}, []string{"action", "outcome"})

	// ActionDuration tracks wall-clock time per action execution.
	ActionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "connector_action_duration_seconds",
		Help:    "Action execution latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})

	// VendorRequests counts HTTP exchanges with the vendor API by endpoint
	// and outcome (ok, error).
	VendorRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connector_vendor_requests_total",
		Help: "Vendor API requests by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	// SessionInvalidations counts cached vendor sessions dropped after the
	// vendor rejected them.
	SessionInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "connector_session_invalidations_total",
		Help: "Cached vendor sessions invalidated after rejection.",
	})

	// ObservationsForwarded counts observations delivered downstream.
	ObservationsForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "connector_observations_forwarded_total",
		Help: "Observations delivered to the ingestion API.",
	})

	// ObservationsSkipped counts devices or fixes dropped before delivery,
	// by reason (no_position, not_newer).
	ObservationsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connector_observations_skipped_total",
		Help: "Device fixes skipped before delivery, by reason.",
	}, []string{"reason"})
)

// StartMetricsServer serves /metrics and /healthz on addr. It blocks, so
// callers run it on its own goroutine.
func StartMetricsServer(addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info().Str("addr", addr).Msg("metrics server listening")
	return srv.ListenAndServe()
}
