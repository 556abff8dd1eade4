package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsRegistry holds all Prometheus metrics for the sync engine
type MetricsRegistry struct {
	// HTTP Metrics
	HTTPRequestsTotal    prometheus.CounterVec
	HTTPRequestDuration  prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.GaugeVec

	// Sync Business Metrics
	BudgetDenialsTotal    prometheus.Counter
	BatchesProcessedTotal prometheus.CounterVec
	BatchDuration         prometheus.HistogramVec
	RecordsUpsertedTotal  prometheus.Counter
}

// NewMetricsRegistry initializes and returns a new MetricsRegistry with all metrics
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		HTTPRequestsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pacemaker_http_requests_total",
				Help: "Total HTTP requests processed by endpoint, method, and status code",
			},
			[]string{"endpoint", "method", "status_code"},
		),
		HTTPRequestDuration: *promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pacemaker_http_request_duration_seconds",
				Help:    "HTTP request latency distribution in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"endpoint", "method"},
		),
		HTTPRequestsInFlight: *promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pacemaker_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
			[]string{"endpoint"},
		),

		BudgetDenialsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pacemaker_rate_budget_denials_total",
				Help: "Scheduler claims denied because the rate budget was exhausted",
			},
		),
		BatchesProcessedTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pacemaker_batches_processed_total",
				Help: "Sync batches processed by type and outcome",
			},
			[]string{"batch_type", "outcome"},
		),
		BatchDuration: *promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pacemaker_batch_duration_seconds",
				Help:    "Time spent processing one sync batch",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"batch_type"},
		),
		RecordsUpsertedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pacemaker_activity_records_upserted_total",
				Help: "Distinct activity records added by discovery",
			},
		),
	}
}
