/*
Package workers determines worker pool sizes for the scan pipeline in
containerized environments.

# Overview

When running in containers the number of usable CPUs may be limited by cgroup
constraints. runtime.NumCPU() still reports the host's CPU count, while
GOMAXPROCS (Go 1.19+) follows the container limit. Worker counts are derived
from GOMAXPROCS.

# Usage

Scanning is I/O-bound (stat, ffprobe, header reads), so the walker uses two
workers per CPU:

	numWorkers := workers.ForIO(32)

An explicit configuration value wins over the computed default:

	numWorkers := workers.Resolve(cfg.Workers, 64)

# Environment Variable Override

The INDEX_WORKERS environment variable overrides the automatic calculation:

	env:
	- name: INDEX_WORKERS
	  value: "4"

Invalid, zero or negative values are ignored.
*/
package workers
