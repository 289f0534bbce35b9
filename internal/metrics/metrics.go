// Package metrics holds the Prometheus counters recorded during a run.
// The tool is a batch job, so instead of serving /metrics it can write the
// registry to a node_exporter textfile when the run ends.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatch outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeEmpty = "empty"
	OutcomeError = "error"
)

var (
	// RequestsTotal counts upstream responses by HTTP status ("error" when none was received).
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polygon_requests_total",
		Help: "Total upstream requests by HTTP status",
	}, []string{"status"})

	// RetriesTotal counts transient-failure retries by error type.
	RetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polygon_retries_total",
		Help: "Total retry attempts for transient failures by error type",
	}, []string{"error_type"})

	// RateLimitWaitSeconds observes backoff taken after HTTP 429.
	RateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polygon_rate_limit_wait_seconds",
		Help:    "Backoff duration after HTTP 429 responses",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})

	// DispatchTasksTotal counts per-ticker fetch outcomes.
	DispatchTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "options_dispatch_tasks_total",
		Help: "Per-ticker fetch tasks by contract type and outcome",
	}, []string{"contract_type", "outcome"})

	// RecordsTotal counts records merged into result sets.
	RecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "options_records_total",
		Help: "Records merged into the result set by contract type",
	}, []string{"contract_type"})
)

// ObserveRequest records one upstream exchange. A zero status means no
// response was received.
func ObserveRequest(status int) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	RequestsTotal.WithLabelValues(label).Inc()
}

// WriteTextfile writes every registered metric to path in the Prometheus
// text exposition format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
