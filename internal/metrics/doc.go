// Package metrics provides Prometheus instrumentation for the media catalog.
//
// All metrics are prefixed with "media_catalog_" to avoid naming collisions
// with other applications.
//
// # Metric Categories
//
// ## HTTP Metrics
//
//   - HTTPRequestsTotal: Counter of total requests by method, path, and status
//   - HTTPRequestDuration: Histogram of request duration by method and path
//   - HTTPRequestsInFlight: Gauge of currently processing requests
//
// ## Database Metrics
//
//   - DBQueryTotal: Counter of queries by operation and status
//   - DBQueryDuration: Histogram of query duration by operation
//   - DBConnectionsOpen: Gauge of open database connections
//   - DBSizeBytes: Gauge of database file sizes (main, WAL, SHM)
//
// ## Indexer Metrics
//
//   - IndexerRunsTotal, IndexerLastRunTimestamp, IndexerLastRunDuration
//   - IndexerFilesProcessed, IndexerRecordsEmitted, IndexerUnitsEmitted
//   - IndexerErrors: Counter of scan failures by error kind
//   - IndexerDroppedFacts: Counter of facts rejected for missing provenance
//   - IndexerIsRunning, IndexerParallelWorkers
//   - IndexerDirCacheHits / IndexerDirCacheMisses: sidecar discovery cache
//   - IndexerPollChecksTotal, IndexerPollChangesDetected, IndexerPollDuration
//   - WatcherEventsTotal, WatcherErrors, WatchedDirectories
//
// ## Archive Metrics
//
//   - ArchiveListingsTotal: Counter of listings by result
//   - ArchiveListingDuration: Histogram of header enumeration time
//   - ArchiveEntriesListed: Histogram of entries per listing
//   - ArchiveEntriesDropped: Counter of dropped entries by reason
//
// ## Producer Metrics
//
//   - ProducerCallsTotal: Counter by producer and status
//   - ProducerDuration: Histogram by producer
//   - FFprobeDuration: Histogram of ffprobe wall time
//
// ## Memory Metrics
//
//   - MemoryUsageRatio, MemoryPaused, MemoryPausesTotal: scan backpressure
//
// ## Filesystem Metrics
//
// Recorded through the filesystem.Observer returned by NewFilesystemObserver.
//
// # Usage
//
//	filesystem.SetObserver(metrics.NewFilesystemObserver())
//	metrics.InitializeMetrics()
//	collector := metrics.NewCollector(store, time.Minute)
//	collector.Start()
//	defer collector.Stop()
package metrics
