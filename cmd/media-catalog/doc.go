// Package main is the media-catalog command.
//
// media-catalog turns a directory of media files into a searchable corpus.
// Each file is classified by extension, probed by the fact producers for
// its category (ffprobe, EXIF, audio tags, archive listings), linked with
// its sidecars, and converted into provenance-tagged corpus units.
//
// # Commands
//
//   - scan: one scan pass into the SQLite index and/or a JSON Lines file
//   - watch: initial scan, then live updates from fsnotify and polling
//   - search: query an existing index from the terminal
//   - serve: HTTP query API with background indexing, health probes and
//     Prometheus metrics
//
// # Configuration
//
// Every command reads the same configuration: an optional YAML file given
// with --config, overridden by CATALOG_* environment variables. See package
// startup for the keys. GOMEMLIMIT is derived from MEMORY_LIMIT when set.
//
// # Exit Codes
//
//	0  success
//	1  scan, I/O or server failure
//	2  configuration error
//
// Logs go to stderr so that `scan --jsonl -` can write units to stdout.
package main
