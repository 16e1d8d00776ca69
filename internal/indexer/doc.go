// Package indexer runs scan passes that turn a directory tree into
// provenance-tagged corpus units.
//
// A pass walks the root with a ParallelWalker and hands every file event to a
// pool of workers. Each worker runs the Pipeline for its file:
//   - classify the file and check it lies inside the allowed root
//   - discover same-named sidecars in its directory (cached per pass)
//   - skip sidecars, which are handled together with their primary
//   - run the registered fact producers for the primary and each sidecar
//   - assemble the record, build its units and emit them to the Sink
//
// Every pass is stamped with a generation id. Records whose files did not
// change are restamped instead of rebuilt when the sink supports it, and once
// a pass has seen the whole tree, records of earlier generations are retired.
//
// The indexer operates in multiple modes:
//   - One-shot scan: Index or Rebuild from the CLI
//   - Background: initial scan, periodic re-scans and lightweight change
//     polling for network filesystems (Start/Stop)
//   - File watching: incremental updates via fsnotify with debouncing
//   - Manual trigger: on-demand re-scan via the HTTP API
//
// Per-file failures never stop a pass. They are logged, counted by error kind
// and reported in the pass summary. Invariant violations make the pass fail.
package indexer
