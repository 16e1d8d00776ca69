// Package startup handles application initialization, configuration loading,
// component wiring and startup/shutdown logging.
//
// # Configuration
//
// [LoadConfig] reads an optional YAML file and then CATALOG_* environment
// variables (CATALOG_ROOT_PATH overrides root_path). Options left unset by
// both keep their [DefaultConfig] value and unknown options are ignored.
//
//   - root_path, allowed_root: required; root_path must lie within allowed_root
//   - archive_max_entries (50000), archive_max_total_size (50 GiB),
//     archive_max_entry_size (4 GiB), archive_max_nesting_depth (2)
//   - text_extract_max_bytes (1 MiB), subtitle_max_bytes (8 MiB),
//     text_encoding (utf-8)
//   - producer_timeout_ms (30000)
//   - extension_category_map: extension to category overrides
//   - database_path, workers, ffprobe_path, chunk_size (512),
//     chunk_overlap (50), index_unknown, skip_hidden (true)
//   - port (8080), index_interval (30m), poll_interval (30s),
//     metrics_enabled (true), log_health_checks (true)
//
// A missing required option, an out-of-range value or a root_path outside
// allowed_root is a ConfigurationError returned before any scanning begins.
//
// LOG_LEVEL, DEBUG, INDEX_WORKERS, MEMORY_LIMIT, MEMORY_RATIO and GOMEMLIMIT
// are read by their own packages and are not part of Config.
//
// # Wiring
//
// [Config.NewPipeline] builds the category table, archive inspector,
// producer registry and corpus builder and connects them to a sink.
// [Config.IndexerConfig] carries the scan settings over to the indexer.
//
// # Lifecycle Logging
//
// Banner-style sections are logged at each stage: [Init] (banner, system
// information, configuration), [LogDatabaseInit], [LogProducerInit],
// [LogIndexerInit], [LogHTTPRoutes], [LogServerStarted] and the shutdown
// helpers. All output goes to the log on stderr.
//
// # Example Usage
//
//	config, err := startup.Init(configPath)
//	if err != nil {
//	    return err
//	}
//	pipeline, err := config.NewPipeline(db)
//	if err != nil {
//	    return err
//	}
//	idx := indexer.New(pipeline, db, config.IndexerConfig(monitor))
package startup
