// Package memory controls the Go runtime's memory budget in containers and
// applies backpressure to scan workers.
//
// # Configuration
//
// Call [ConfigureFromEnv] early in main, before significant allocations:
//
//   - GOMEMLIMIT: standard Go variable; takes precedence when set.
//   - MEMORY_LIMIT: container memory limit in bytes, typically injected with
//     the Kubernetes Downward API (resourceFieldRef: limits.memory).
//   - MEMORY_RATIO: share of MEMORY_LIMIT given to the heap (default 0.85).
//     Lower it when many ffprobe processes run concurrently.
//
// GOMEMLIMIT is a soft limit: it makes the garbage collector work harder as
// the heap approaches it but does not cover cgo (SQLite) or subprocess memory.
//
// # Backpressure
//
// A [Monitor] samples heap usage. Above the pause threshold scan workers
// block in [Monitor.Wait] until usage drops below the resume threshold:
//
//	monitor := memory.NewMonitor(memory.DefaultConfig())
//	monitor.Start()
//	defer monitor.Stop()
//
//	for ev := range events {
//	    if err := monitor.Wait(ctx); err != nil {
//	        return err
//	    }
//	    // process ev
//	}
package memory
