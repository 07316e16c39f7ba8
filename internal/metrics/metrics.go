// Package metrics provides Prometheus instrumentation for the retry
// scheduler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ItemsCreated counts retry items queued, by retry type.
	ItemsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "retryd",
		Name:      "items_created_total",
		Help:      "Total number of retry items created.",
	}, []string{"type"})

	// Attempts counts executed attempts by retry type and outcome
	// (success, rescheduled, exhausted).
	Attempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "retryd",
		Name:      "attempts_total",
		Help:      "Total number of retry attempts executed.",
	}, []string{"type", "outcome"})

	// ManualRetries counts operator-triggered retries by outcome.
	ManualRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "retryd",
		Name:      "manual_retries_total",
		Help:      "Total number of manual retries.",
	}, []string{"outcome"})

	// ItemsReclaimed counts items returned from a stale processing claim
	// back to pending.
	ItemsReclaimed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "retryd",
		Name:      "items_reclaimed_total",
		Help:      "Total number of stuck items reclaimed to pending.",
	})

	// Notifications counts dispatched notices by delivery status.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "retryd",
		Name:      "notifications_total",
		Help:      "Total number of retry notifications dispatched.",
	}, []string{"status"})

	// AttemptDuration tracks handler execution time.
	AttemptDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "retryd",
		Name:      "attempt_duration_seconds",
		Help:      "Duration of retry attempt execution in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"type"})

	// CycleDuration tracks full batch cycle time.
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "retryd",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of batch cycles in seconds.",
		Buckets:   prometheus.DefBuckets,
	})

	// DueBacklog tracks the number of pending items currently due.
	DueBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "retryd",
		Name:      "due_backlog",
		Help:      "Number of pending retry items that are due.",
	})

	// InFlight tracks attempts currently executing.
	InFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "retryd",
		Name:      "attempts_in_flight",
		Help:      "Number of retry attempts currently executing.",
	})

	// ServerInfo exposes static server metadata as labels.
	ServerInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "retryd",
		Name:      "server_info",
		Help:      "Static server metadata.",
	}, []string{"version", "store"})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "retryd",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "retryd",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})
)

// Init sets static server metadata on the info metric.
func Init(version, store string) {
	ServerInfo.WithLabelValues(version, store).Set(1)
}
