package metrics

import (
	"media-catalog/internal/catalog"
	"media-catalog/internal/mediatypes"
)

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, file := range []string{"main", "wal", "shm"} {
		DBSizeBytes.WithLabelValues(file)
	}

	for _, op := range []string{"stat", "open", "readdir"} {
		FilesystemOperationDuration.WithLabelValues(op)
		FilesystemOperationErrors.WithLabelValues(op)
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemRetrySuccess.WithLabelValues(op)
		FilesystemRetryFailures.WithLabelValues(op)
		FilesystemStaleErrors.WithLabelValues(op)
	}

	DBTransactionDuration.WithLabelValues("commit")
	DBTransactionDuration.WithLabelValues("rollback")

	for _, kind := range catalog.AllKinds {
		IndexerErrors.WithLabelValues(string(kind))
		ArchiveListingsTotal.WithLabelValues(string(kind))
	}
	ArchiveListingsTotal.WithLabelValues("ok")
	ArchiveListingsTotal.WithLabelValues("truncated")

	for _, reason := range []string{"traversal", "symlink"} {
		ArchiveEntriesDropped.WithLabelValues(reason)
	}

	for _, st := range catalog.AllSourceTypes {
		IndexerUnitsEmitted.WithLabelValues(string(st))
	}

	for _, cat := range mediatypes.AllCategories {
		CatalogRecordsTotal.WithLabelValues(string(cat))
	}

	for _, ev := range []string{"create", "write", "remove", "rename"} {
		WatcherEventsTotal.WithLabelValues(ev)
	}

	for _, op := range []string{"initialize_schema", "emit_record", "retire_generation",
		"search_fields", "search_text", "get_record", "delete_record", "refresh_record",
		"begin_scan", "finish_scan", "list_scans", "stats", "export_paths"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}
}
