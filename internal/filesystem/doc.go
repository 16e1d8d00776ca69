/*
Package filesystem provides resilient filesystem operations with automatic retry logic
for NFS stale file handle errors, plus the path containment checks used to keep the
catalog inside its allowed root.

# Purpose

Media libraries are frequently NFS-mounted. This package wraps os.Stat, os.Open
and os.ReadDir with retry logic for ESTALE (stale file handle) errors that
occur when NFS-mounted files are accessed during network issues or server-side changes.

# Usage

	info, err := filesystem.StatWithRetry("/nfs/media/movie.mkv", filesystem.DefaultRetryConfig())

	entries, err := filesystem.ReadDirWithRetry("/nfs/media", filesystem.DefaultRetryConfig())

	if !filesystem.Within(allowedRoot, archivePath) {
	    // reject
	}

# Retry Behavior

The retry logic implements exponential backoff with the following defaults:
  - MaxRetries: 3 attempts
  - InitialBackoff: 50ms
  - MaxBackoff: 500ms

Only NFS stale file handle errors (ESTALE) trigger retries. All other errors
fail immediately without retry attempts.

# Metrics

Operations report to the Observer installed with SetObserver. The metrics package
provides the Prometheus implementation; when no observer is set, recording is skipped.
*/
package filesystem
