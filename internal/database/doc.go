// Package database provides the SQLite index the scan pipeline writes to and
// the query layer reads from.
//
// It stores:
//   - One record per primary file with its linked sidecars
//   - The corpus units built for each record, with full provenance
//   - Structured fields of fields units, for exact key:value search
//   - A trigram FTS5 index over unit text
//   - One row per scan pass with its error summary
//
// The database uses WAL mode so queries can run while a scan writes. The
// mattn/go-sqlite3 driver must be built with the sqlite_fts5 tag. Opening
// with Options.ReadOnly never creates a file: a missing index is reported as
// catalog.ErrIndexNotFound.
package database
