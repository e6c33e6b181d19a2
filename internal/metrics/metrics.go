package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result sources for FetchResults.
const (
	SourceNetwork = "network"
	SourceCache   = "cache"
	SourceError   = "error"
)

var (
	// Outbound calls to the CoinCap API.
	CoinCapRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coincap_api_requests_total",
			Help: "Total number of CoinCap API requests (by endpoint and outcome).",
		},
		[]string{"endpoint", "status"}, // status = "ok" | "not_found" | "error"
	)

	CoinCapRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coincap_api_request_duration_seconds",
			Help:    "Duration of CoinCap API requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms → ~10s
		},
		[]string{"endpoint"},
	)

	// Where each coordinator fetch was ultimately served from.
	FetchResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetsync_fetch_results_total",
			Help: "Coordinator fetch outcomes by operation and source.",
		},
		[]string{"operation", "source"},
	)

	CacheFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetsync_cache_fallbacks_total",
			Help: "Number of times a failed network read fell back to the local cache.",
		},
		[]string{"operation", "result"}, // result = "hit" | "miss" | "error"
	)

	SnapshotWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetsync_snapshot_writes_total",
			Help: "Snapshot (save offline) attempts by result.",
		},
		[]string{"result"},
	)

	SnapshotAssets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "assetsync_snapshot_assets",
			Help: "Number of assets in the last persisted snapshot.",
		},
	)

	LastSnapshotTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "assetsync_last_snapshot_timestamp_seconds",
			Help: "Unix time of the last persisted snapshot.",
		},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetsync_events_published_total",
			Help: "Snapshot notifications published by broker and result.",
		},
		[]string{"broker", "result"},
	)

	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetcache_errors_total",
			Help: "Count of errors by component.",
		},
		[]string{"component", "reason"},
	)
)

// ObserveDuration records the time elapsed since start on a histogram.
func ObserveDuration(h *prometheus.HistogramVec, start time.Time, labels ...string) {
	h.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
}

func IncCoinCapRequest(endpoint, status string) {
	CoinCapRequestsTotal.WithLabelValues(endpoint, status).Inc()
}

func IncFetch(operation, source string) {
	FetchResults.WithLabelValues(operation, source).Inc()
}

func IncFallback(operation, result string) {
	CacheFallbacks.WithLabelValues(operation, result).Inc()
}

func IncError(component, reason string) {
	ErrorsTotal.WithLabelValues(component, reason).Inc()
}

func IncEvent(broker, result string) {
	EventsPublished.WithLabelValues(broker, result).Inc()
}

// RecordSnapshot updates the snapshot gauges after a successful write.
func RecordSnapshot(savedTimestampMs int64, count int) {
	SnapshotWrites.WithLabelValues("ok").Inc()
	SnapshotAssets.Set(float64(count))
	LastSnapshotTimestamp.Set(float64(savedTimestampMs) / 1000)
}
