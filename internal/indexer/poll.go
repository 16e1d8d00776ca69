package indexer

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"media-catalog/internal/filesystem"
	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
)

// pollState is the last known shape of the root, used for cheap change
// detection on filesystems where fsnotify is unreliable (NFS, SMB).
type pollState struct {
	mu             sync.RWMutex
	rootModTime    time.Time
	topLevelCount  int
	subdirModTimes map[string]time.Time
}

func newPollState() *pollState {
	return &pollState{subdirModTimes: make(map[string]time.Time)}
}

// snapshot reads the root's mtime, its visible top-level entry count and the
// mtimes of its top-level directories.
func snapshot(root string) (time.Time, int, map[string]time.Time, error) {
	retry := filesystem.DefaultRetryConfig()

	rootInfo, err := filesystem.StatWithRetry(root, retry)
	if err != nil {
		return time.Time{}, 0, nil, fmt.Errorf("failed to stat root directory: %w", err)
	}
	entries, err := filesystem.ReadDirWithRetry(root, retry)
	if err != nil {
		return time.Time{}, 0, nil, fmt.Errorf("failed to read root directory: %w", err)
	}

	count := 0
	subdirs := make(map[string]time.Time)
	for _, entry := range entries {
		if filesystem.IsHidden(entry.Name()) {
			continue
		}
		count++
		if !entry.IsDir() {
			continue
		}
		if info, err := filesystem.StatWithRetry(filepath.Join(root, entry.Name()), retry); err == nil {
			subdirs[entry.Name()] = info.ModTime()
		}
	}
	return rootInfo.ModTime(), count, subdirs, nil
}

func (s *pollState) update(root string) {
	mod, count, subdirs, err := snapshot(root)
	if err != nil {
		logging.Warn("Failed to update change detection state: %v", err)
		return
	}
	s.mu.Lock()
	s.rootModTime = mod
	s.topLevelCount = count
	s.subdirModTimes = subdirs
	s.mu.Unlock()
}

// changed reports whether root differs from the last recorded state. It
// only looks at the root and its direct subdirectories.
func (s *pollState) changed(root string) (bool, error) {
	mod, count, subdirs, err := snapshot(root)
	if err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if mod.After(s.rootModTime) {
		logging.Debug("Root directory modified: %v > %v", mod, s.rootModTime)
		return true, nil
	}
	if count != s.topLevelCount {
		logging.Debug("Top-level count changed: %d -> %d", s.topLevelCount, count)
		return true, nil
	}
	for name, m := range subdirs {
		last, ok := s.subdirModTimes[name]
		if !ok {
			logging.Debug("New subdirectory detected: %s", name)
			return true, nil
		}
		if m.After(last) {
			logging.Debug("Subdirectory %s modified: %v > %v", name, m, last)
			return true, nil
		}
	}
	return false, nil
}

// detectChanges performs one polling check.
func (idx *Indexer) detectChanges() (bool, error) {
	start := time.Now()
	defer func() {
		metrics.IndexerPollDuration.Observe(time.Since(start).Seconds())
		metrics.IndexerPollChecksTotal.Inc()
	}()

	changed, err := idx.state.changed(idx.cfg.Root)
	if changed {
		metrics.IndexerPollChangesDetected.Inc()
	}
	return changed, err
}

// pollForChanges re-scans when the polling check sees a change.
func (idx *Indexer) pollForChanges() {
	for !idx.IsReady() {
		select {
		case <-time.After(1 * time.Second):
		case <-idx.stopChan:
			return
		}
	}

	logging.Info("Starting change detection polling (interval: %v)", idx.cfg.PollInterval)

	ticker := time.NewTicker(idx.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if idx.IsIndexing() {
				continue
			}
			changed, err := idx.detectChanges()
			if err != nil {
				logging.Error("Error detecting changes: %v", err)
				continue
			}
			if changed {
				logging.Info("File changes detected, triggering re-index")
				if _, err := idx.Index(idx.ctx); err != nil {
					logging.Error("Re-index after change detection failed: %v", err)
				}
			}
		case <-idx.stopChan:
			logging.Info("Change detection polling stopped")
			return
		}
	}
}
