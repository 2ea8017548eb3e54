package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(storageFallbacksTotal, storageBackendInfo) }

var storageFallbacksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "job_storage_fallbacks_total",
		Help: "Storage backend fallback decisions at startup.",
	},
	[]string{"requested", "selected"},
)

var storageBackendInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "job_storage_backend",
		Help: "Set to 1 for the backend currently serving job storage.",
	},
	[]string{"backend"},
)

func RecordStorageSelection(requested, selected string) {
	if norm(requested) != norm(selected) {
		storageFallbacksTotal.WithLabelValues(norm(requested), norm(selected)).Inc()
	}
	storageBackendInfo.WithLabelValues(norm(selected)).Set(1)
}
