// Package handlers provides the HTTP query API over the catalog index.
//
// Every endpoint is read-only over the index and only returns what a stored
// record holds:
//   - GET /api/search: "key:value" field search or text search, with
//     mandatory path and source_type on every hit
//   - GET /api/record: one record with its sidecars and corpus units
//   - GET /api/scans, /api/scans/last: scan history with per-kind error counts
//   - GET /api/stats: record and unit totals
//   - POST /api/reindex: starts a background scan pass
//   - /health, /healthz, /livez, /readyz, /version, /metrics
package handlers
