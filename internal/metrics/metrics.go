package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	DBTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_db_transaction_duration_seconds",
			Help:    "Database transaction duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"result"}, // "commit" or "rollback"
	)

	DBSizeBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_catalog_db_size_bytes",
			Help: "Size of SQLite database files in bytes",
		},
		[]string{"file"}, // "main", "wal", "shm"
	)
)

// Indexer metrics
var (
	IndexerRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_indexer_runs_total",
			Help: "Total number of scan passes",
		},
	)

	IndexerLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_indexer_last_run_timestamp",
			Help: "Unix timestamp of the last completed scan pass",
		},
	)

	IndexerLastRunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_indexer_last_run_duration_seconds",
			Help: "Duration of the last scan pass in seconds",
		},
	)

	IndexerFilesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_indexer_files_processed_total",
			Help: "Total number of files handled by the scan pipeline",
		},
	)

	IndexerRecordsEmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_indexer_records_emitted_total",
			Help: "Total number of assembled records written to the sink",
		},
	)

	IndexerUnitsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_indexer_units_emitted_total",
			Help: "Total number of corpus units written to the sink by source type",
		},
		[]string{"source_type"},
	)

	IndexerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_indexer_errors_total",
			Help: "Total number of scan errors by kind",
		},
		[]string{"kind"},
	)

	IndexerDroppedFacts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_indexer_dropped_facts_total",
			Help: "Total number of facts rejected for missing provenance",
		},
	)

	IndexerIsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_indexer_running",
			Help: "Whether a scan pass is currently running (1 = running, 0 = idle)",
		},
	)

	IndexerParallelWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_indexer_parallel_workers",
			Help: "Number of workers used by the parallel walker",
		},
	)

	IndexerDirCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_indexer_dir_cache_hits_total",
			Help: "Directory listing cache hits during sidecar discovery",
		},
	)

	IndexerDirCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_indexer_dir_cache_misses_total",
			Help: "Directory listing cache misses during sidecar discovery",
		},
	)

	IndexerPollChecksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_indexer_poll_checks_total",
			Help: "Total number of polling checks for file changes",
		},
	)

	IndexerPollChangesDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_indexer_poll_changes_detected_total",
			Help: "Total number of times polling detected changes",
		},
	)

	IndexerPollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_catalog_indexer_poll_duration_seconds",
			Help:    "Duration of polling change checks",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
	)

	WatcherEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_watcher_events_total",
			Help: "Total number of filesystem watcher events",
		},
		[]string{"event_type"},
	)

	WatcherErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_watcher_errors_total",
			Help: "Total number of filesystem watcher errors",
		},
	)

	WatchedDirectories = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_watched_directories",
			Help: "Number of directories currently being watched",
		},
	)
)

// Archive inspection metrics
var (
	ArchiveListingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_archive_listings_total",
			Help: "Total number of archive listings by result",
		},
		[]string{"result"}, // "ok", "truncated", or an error kind
	)

	ArchiveListingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_catalog_archive_listing_duration_seconds",
			Help:    "Time spent enumerating archive headers",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
	)

	ArchiveEntriesListed = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_catalog_archive_entries_listed",
			Help:    "Number of entries returned per archive listing",
			Buckets: []float64{0, 1, 10, 100, 1000, 10000, 50000},
		},
	)

	ArchiveEntriesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_archive_entries_dropped_total",
			Help: "Archive entries dropped during listing by reason",
		},
		[]string{"reason"}, // "traversal", "symlink"
	)
)

// Fact producer metrics
var (
	ProducerCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_producer_calls_total",
			Help: "Total number of fact producer invocations",
		},
		[]string{"producer", "status"},
	)

	ProducerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_producer_duration_seconds",
			Help:    "Fact producer call duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"producer"},
	)

	FFprobeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_catalog_ffprobe_duration_seconds",
			Help:    "Wall time of ffprobe invocations",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_catalog_filesystem_operation_duration_seconds",
			Help:    "Duration of filesystem operations",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_filesystem_operation_errors_total",
			Help: "Total number of failed filesystem operations",
		},
		[]string{"operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_filesystem_retry_attempts_total",
			Help: "Total number of filesystem retry attempts",
		},
		[]string{"operation"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_filesystem_retry_success_total",
			Help: "Filesystem operations that succeeded after retrying",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_filesystem_retry_failures_total",
			Help: "Filesystem operations that failed after all retries",
		},
		[]string{"operation"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_catalog_filesystem_stale_errors_total",
			Help: "Stale file handle errors encountered",
		},
		[]string{"operation"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_memory_usage_ratio",
			Help: "Go heap allocation as a fraction of the configured memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_memory_paused",
			Help: "Whether scan workers are paused for memory pressure (1 = paused)",
		},
	)

	MemoryPausesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_catalog_memory_pauses_total",
			Help: "Total number of times scan workers were paused for memory pressure",
		},
	)
)

// Catalog content metrics
var (
	CatalogRecordsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_catalog_records",
			Help: "Number of live records in the index by category",
		},
		[]string{"category"},
	)

	CatalogUnitsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_catalog_units",
			Help: "Number of corpus units in the index",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_catalog_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
