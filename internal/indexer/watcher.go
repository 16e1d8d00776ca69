package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"media-catalog/internal/catalog"
	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
)

// DefaultDebounce is how long the watcher waits for a burst of events on one
// path to settle before re-indexing it.
const DefaultDebounce = 500 * time.Millisecond

// Watcher keeps the index current between scans by re-indexing files as
// fsnotify reports them.
type Watcher struct {
	idx      *Indexer
	watcher  *fsnotify.Watcher
	debounce time.Duration
	log      logging.Logger

	mu      sync.Mutex
	pending map[string]fsnotify.Op
	dirs    map[string]struct{}
	pass    *Pass
}

// NewWatcher creates a watcher over the indexer's root.
func (idx *Indexer) NewWatcher(debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		metrics.WatcherErrors.Inc()
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		idx:      idx,
		watcher:  fw,
		debounce: debounce,
		log:      logging.For("watcher"),
		pending:  make(map[string]fsnotify.Op),
		dirs:     make(map[string]struct{}),
	}, nil
}

// Run watches until ctx is cancelled, then closes the underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		if err := w.watcher.Close(); err != nil {
			w.log.Error("failed to close file watcher: %v", err)
		}
	}()

	n := w.addTree(w.idx.cfg.Root)
	w.log.Info("Watching %d directories under %s", n, w.idx.cfg.Root)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if w.queue(event) {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error("Watcher error: %v", err)
			metrics.WatcherErrors.Inc()

		case <-timer.C:
			w.flush(ctx)
		}
	}
}

// addTree adds root and every non-hidden directory below it.
func (w *Watcher) addTree(root string) int {
	added := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.log.Warn("Error accessing path %s: %v", path, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.idx.cfg.Walker.SkipHidden && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if addErr := w.watcher.Add(path); addErr != nil {
			w.log.Warn("failed to add path to watcher %s: %v", path, addErr)
			metrics.WatcherErrors.Inc()
			return nil
		}
		w.mu.Lock()
		w.dirs[path] = struct{}{}
		w.mu.Unlock()
		added++
		return nil
	})
	if err != nil {
		w.log.Error("failed to walk %s for watcher: %v", root, err)
		metrics.WatcherErrors.Inc()
	}
	w.updateGauge()
	return added
}

func (w *Watcher) updateGauge() {
	w.mu.Lock()
	metrics.WatchedDirectories.Set(float64(len(w.dirs)))
	w.mu.Unlock()
}

// eventType returns the metric label for an fsnotify operation.
func eventType(op fsnotify.Op) string {
	switch {
	case op&fsnotify.Create != 0:
		return "create"
	case op&fsnotify.Write != 0:
		return "write"
	case op&fsnotify.Remove != 0:
		return "remove"
	case op&fsnotify.Rename != 0:
		return "rename"
	case op&fsnotify.Chmod != 0:
		return "chmod"
	default:
		return "unknown"
	}
}

// queue records an event for the next flush and reports whether it was kept.
func (w *Watcher) queue(event fsnotify.Event) bool {
	if w.idx.cfg.Walker.SkipHidden && strings.Contains(event.Name, string(filepath.Separator)+".") {
		return false
	}
	metrics.WatcherEventsTotal.WithLabelValues(eventType(event.Op)).Inc()
	if event.Op == fsnotify.Chmod {
		return false
	}

	w.mu.Lock()
	w.pending[event.Name] |= event.Op
	w.mu.Unlock()
	return true
}

// currentPass returns the pass watcher updates are stamped with. It follows
// the generation of the last completed scan so the next scan retires
// records correctly.
func (w *Watcher) currentPass() *Pass {
	gen := w.idx.LastGeneration()
	if gen == "" {
		gen = uuid.NewString()
	}
	if w.pass == nil || w.pass.Generation != gen {
		w.pass = w.idx.pipeline.NewPass(gen)
	}
	return w.pass
}

// flush re-indexes every path queued since the last flush.
func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.mu.Unlock()

	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	ps := w.currentPass()
	for _, path := range paths {
		if ctx.Err() != nil {
			return
		}
		ps.dirs.Forget(filepath.Dir(path))

		info, err := os.Stat(path)
		switch {
		case err == nil && info.IsDir():
			w.handleNewDir(ctx, path, ps)
		case err == nil && info.Mode().IsRegular():
			w.handleFile(ctx, catalog.FileEvent{Path: path, Size: info.Size(), ModTime: info.ModTime()}, ps)
		case err != nil && os.IsNotExist(err):
			w.handleRemoved(ctx, path, ps)
		case err != nil:
			w.log.Warn("Cannot stat %s: %v", path, err)
		}
	}
}

func (w *Watcher) handleFile(ctx context.Context, ev catalog.FileEvent, ps *Pass) {
	outcome, err := w.idx.pipeline.Process(ctx, ev, ps, true)
	if err != nil {
		w.log.Warn("%s: %s (%v)", ev.Path, outcome, err)
		return
	}
	w.log.Debug("%s: %s", ev.Path, outcome)
}

// handleNewDir starts watching a new directory and indexes what it holds.
func (w *Watcher) handleNewDir(ctx context.Context, dir string, ps *Pass) {
	w.mu.Lock()
	_, known := w.dirs[dir]
	w.mu.Unlock()
	if known {
		return
	}
	w.addTree(dir)
	w.log.Debug("Added new directory to watcher: %s", dir)

	walker := NewParallelWalker(dir, w.idx.cfg.Walker)
	events := make(chan catalog.FileEvent, w.idx.cfg.Walker.ChannelBuffer)
	go func() {
		if err := walker.Walk(ctx, events); err != nil {
			w.log.Warn("Walking new directory %s: %v", dir, err)
		}
		close(events)
	}()
	for ev := range events {
		w.handleFile(ctx, ev, ps)
	}
}

// handleRemoved drops the record of a vanished file and rebuilds the records
// that shared its base name, since they gained or lost a sidecar.
func (w *Watcher) handleRemoved(ctx context.Context, path string, ps *Pass) {
	w.mu.Lock()
	_, wasDir := w.dirs[path]
	if wasDir {
		for d := range w.dirs {
			if d == path || strings.HasPrefix(d, path+string(filepath.Separator)) {
				delete(w.dirs, d)
			}
		}
	}
	w.mu.Unlock()

	if wasDir {
		w.updateGauge()
		w.log.Info("Directory %s removed, re-scanning to retire its records", path)
		go func() {
			if _, err := w.idx.Index(ctx); err != nil && ctx.Err() == nil {
				w.log.Warn("Re-scan after removal of %s: %v", path, err)
			}
		}()
		return
	}

	if r, ok := w.idx.pipeline.Sink().(Remover); ok {
		if err := r.DeleteRecord(ctx, path); err != nil {
			w.log.Warn("Could not delete record for %s: %v", path, err)
		}
	}

	gone, err := catalog.NewFileRecord(path, 0, time.Time{}, w.idx.pipeline.cfg.Table)
	if err != nil {
		return
	}
	siblings, err := ps.dirs.Files(gone.Dir())
	if err != nil {
		return
	}
	for _, s := range siblings {
		if s.BaseKey() == gone.BaseKey() {
			w.handleFile(ctx, catalog.FileEvent{Path: s.Path, Size: s.SizeBytes, ModTime: s.ModifiedTime}, ps)
		}
	}
}
