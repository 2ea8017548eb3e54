package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(jobsCreatedTotal, jobsFinalizedTotal, reconciliationsTotal, reconcileLatencyMs)
}

var jobsCreatedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "research_jobs_created_total",
		Help: "Total number of research jobs created.",
	},
)

var jobsFinalizedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "research_jobs_finalized_total",
		Help: "Jobs that reached a terminal status, labeled by status.",
	},
	[]string{"status"}, // 'completed', 'failed'
)

var reconciliationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "research_job_reconciliations_total",
		Help: "Status-check reconciliation passes, labeled by outcome.",
	},
	[]string{"outcome"}, // 'updated', 'noop', 'error'
)

var reconcileLatencyMs = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "research_job_reconcile_latency_ms",
		Help:    "Reconciliation pass latency in milliseconds (provider poll included).",
		Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000},
	},
)

func IncJobCreated() { jobsCreatedTotal.Inc() }

func IncJobFinalized(status string) {
	jobsFinalizedTotal.WithLabelValues(norm(status)).Inc()
}

func ObserveReconcile(outcome string, latencyMs float64) {
	reconciliationsTotal.WithLabelValues(norm(outcome)).Inc()
	reconcileLatencyMs.Observe(latencyMs)
}
