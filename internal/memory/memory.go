package memory

import (
	"context"
	"math"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
)

// Config holds the backpressure thresholds of a Monitor.
type Config struct {
	// LimitBytes is the heap budget (0 = use GOMEMLIMIT if set).
	LimitBytes int64

	// ResumeAt is the fraction of the limit below which paused workers resume.
	ResumeAt float64

	// PauseAt is the fraction of the limit at which workers pause.
	PauseAt float64

	// CheckInterval is how often heap usage is sampled.
	CheckInterval time.Duration
}

// DefaultConfig returns the thresholds used by scans.
func DefaultConfig() Config {
	return Config{
		ResumeAt:      0.7,
		PauseAt:       0.85,
		CheckInterval: 5 * time.Second,
	}
}

// Monitor samples heap usage and holds scan workers back while it is above
// the pause threshold. Large archive listings and sidecar texts are the
// allocations it guards against.
type Monitor struct {
	config Config
	limit  int64

	stopOnce sync.Once
	stopChan chan struct{}

	mu      sync.RWMutex
	alloc   uint64
	paused  bool
	resumed chan struct{}
}

// NewMonitor creates a monitor. Without a limit it never pauses.
func NewMonitor(config Config) *Monitor {
	limit := config.LimitBytes
	if limit <= 0 {
		if goMemLimit := debug.SetMemoryLimit(-1); goMemLimit > 0 && goMemLimit < math.MaxInt64 {
			limit = goMemLimit
		} else {
			limit = 0
		}
	}
	if limit > 0 {
		logging.Info("Memory backpressure enabled: limit %s", formatBytes(limit))
	} else {
		logging.Debug("Memory backpressure disabled: no limit configured")
	}

	return &Monitor{
		config:   config,
		limit:    limit,
		stopChan: make(chan struct{}),
		resumed:  make(chan struct{}),
	}
}

// Start begins sampling. It is a no-op without a limit.
func (m *Monitor) Start() {
	if m.limit == 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(m.config.CheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				var stats runtime.MemStats
				runtime.ReadMemStats(&stats)
				m.observe(stats.Alloc)
			case <-m.stopChan:
				return
			}
		}
	}()
}

// Stop ends sampling and releases any waiting workers.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

// observe applies one heap sample.
func (m *Monitor) observe(alloc uint64) {
	if m.limit == 0 {
		return
	}
	usage := float64(alloc) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.alloc = alloc

	switch {
	case !m.paused && usage >= m.config.PauseAt:
		logging.Warn("Memory at %.1f%% of limit, pausing scan workers", usage*100)
		m.paused = true
		metrics.MemoryPaused.Set(1)
		metrics.MemoryPausesTotal.Inc()
		go runtime.GC()
	case m.paused && usage < m.config.ResumeAt:
		logging.Info("Memory at %.1f%% of limit, resuming scan workers", usage*100)
		m.paused = false
		metrics.MemoryPaused.Set(0)
		close(m.resumed)
		m.resumed = make(chan struct{})
	}
}

// Wait blocks while the monitor is paused. It returns ctx.Err() if ctx ends
// first and nil otherwise, including after Stop.
func (m *Monitor) Wait(ctx context.Context) error {
	m.mu.RLock()
	paused, resumed := m.paused, m.resumed
	m.mu.RUnlock()
	if !paused {
		return nil
	}

	select {
	case <-resumed:
		return nil
	case <-m.stopChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Paused reports whether workers are currently held back.
func (m *Monitor) Paused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paused
}

// Usage returns the last sampled allocation, the limit and their ratio.
func (m *Monitor) Usage() (alloc, limit int64, ratio float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	alloc = math.MaxInt64
	if m.alloc <= math.MaxInt64 {
		alloc = int64(m.alloc)
	}
	if m.limit > 0 {
		ratio = float64(m.alloc) / float64(m.limit)
	}
	return alloc, m.limit, ratio
}
