// Package logging provides a simple leveled logging interface for the
// media catalog.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Recovered per-file failures (unreadable files, dropped entries)
//   - ERROR: Error conditions, including invariant violations
//
// The log level is configured via the LOG_LEVEL environment variable and may
// be overridden at runtime with SetLevel. Components obtain a scoped logger
// with For("archive") so every line names the stage that produced it.
package logging
