// Package middleware provides the HTTP middleware chain for the catalog's
// query server.
//
// It includes:
//   - Access logging in W3C Extended Log Format
//   - Prometheus request metrics labelled by route template
//   - Per-client rate limiting for endpoints that start work
//   - gzip compression of JSON and JSONL responses
package middleware
