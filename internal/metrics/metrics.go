package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	ImportRuns       prometheus.Counter
	FilesImported    prometheus.Counter
	MessagesNew      prometheus.Counter
	MessagesUpdated  prometheus.Counter
	RecordsSkipped   prometheus.Counter
	ImportFailures   prometheus.Counter
	ImportDuration   prometheus.Histogram
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	CacheComputeTime prometheus.Histogram
	QueryDuration    prometheus.Histogram
	ServersTracked   prometheus.Gauge
}

// NewMetrics creates new Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ImportRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "discord_insight_import_runs_total",
			Help: "Total number of import runs",
		}),
		FilesImported: promauto.NewCounter(prometheus.CounterOpts{
			Name: "discord_insight_files_imported_total",
			Help: "Total number of export files processed",
		}),
		MessagesNew: promauto.NewCounter(prometheus.CounterOpts{
			Name: "discord_insight_messages_new_total",
			Help: "Total number of newly inserted messages",
		}),
		MessagesUpdated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "discord_insight_messages_updated_total",
			Help: "Total number of messages updated by a merge",
		}),
		RecordsSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "discord_insight_records_skipped_total",
			Help: "Total number of malformed records skipped during import",
		}),
		ImportFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "discord_insight_import_failures_total",
			Help: "Total number of files that failed to import",
		}),
		ImportDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "discord_insight_import_duration_seconds",
			Help:    "Time spent running one import sweep",
			Buckets: prometheus.DefBuckets,
		}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "discord_insight_cache_hits_total",
			Help: "Total number of analysis cache hits",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "discord_insight_cache_misses_total",
			Help: "Total number of analysis cache misses",
		}),
		CacheComputeTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "discord_insight_cache_compute_duration_seconds",
			Help:    "Time spent computing cache misses",
			Buckets: prometheus.DefBuckets,
		}),
		QueryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "discord_insight_query_duration_seconds",
			Help:    "Time spent serving API requests",
			Buckets: prometheus.DefBuckets,
		}),
		ServersTracked: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "discord_insight_servers_tracked",
			Help: "Number of servers present in the store",
		}),
	}
}
