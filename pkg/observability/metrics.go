package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Reconciliation run metrics
	reconciliationRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciliation_runs_total",
			Help: "Total number of reconciliation runs",
		},
		[]string{"trigger", "outcome"},
	)

	reconciliationRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reconciliation_run_duration_seconds",
			Help:    "Duration of reconciliation runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	reconciliationOrdersExamined = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconciliation_orders_examined_total",
			Help: "Total number of stale orders examined by reconciliation runs",
		},
	)

	reconciliationOrdersProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconciliation_orders_processed_total",
			Help: "Total number of orders transitioned by reconciliation runs",
		},
	)

	reconciliationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciliation_errors_total",
			Help: "Total number of per-order errors during reconciliation runs",
		},
		[]string{"kind"},
	)

	// Admin override metrics
	adminOverridesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_overrides_total",
			Help: "Total number of admin recovery actions",
		},
		[]string{"action", "outcome"},
	)
)

// RecordReconciliationRun records the summary metrics for one completed run
func RecordReconciliationRun(trigger string, duration time.Duration, examined, processed int, failed bool) {
	outcome := "ok"
	if failed {
		outcome = "partial"
	}
	reconciliationRunsTotal.WithLabelValues(trigger, outcome).Inc()
	reconciliationRunDuration.Observe(duration.Seconds())
	reconciliationOrdersExamined.Add(float64(examined))
	reconciliationOrdersProcessed.Add(float64(processed))
}

// RecordReconciliationError records one per-order error by kind
func RecordReconciliationError(kind string) {
	reconciliationErrors.WithLabelValues(kind).Inc()
}

// RecordAdminOverride records one admin recovery action
func RecordAdminOverride(action string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "rejected"
	}
	adminOverridesTotal.WithLabelValues(action, outcome).Inc()
}
