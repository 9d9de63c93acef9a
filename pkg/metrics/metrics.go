package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResetRequests records password reset requests by outcome
	// (sent|unknown_account|invalid|not_configured|delivery_failed|storage_failed).
	ResetRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_password_reset_requests_total",
			Help: "Total number of password reset requests",
		},
		[]string{"outcome"},
	)

	// ResetCompletions records password reset completions by outcome.
	ResetCompletions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_password_reset_completions_total",
			Help: "Total number of password reset completion attempts",
		},
		[]string{"outcome"},
	)

	// TokenStoreFailures counts token store persistence failures per backend.
	TokenStoreFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_reset_token_store_failures_total",
			Help: "Total number of reset token persistence failures",
		},
		[]string{"backend"},
	)

	// TokensSwept counts expired reset tokens removed by sweeps.
	TokensSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storefront_reset_tokens_swept_total",
			Help: "Total number of expired reset tokens removed",
		},
	)

	// MaintenanceRuns counts background maintenance runs by job and result.
	MaintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_maintenance_runs_total",
			Help: "Total number of maintenance job runs",
		},
		[]string{"job", "result"},
	)

	// MaintenanceDuration observes how long maintenance jobs take.
	MaintenanceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_maintenance_duration_seconds",
			Help:    "Maintenance job duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
