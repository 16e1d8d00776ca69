package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestEventType(t *testing.T) {
	t.Parallel()
	tests := []struct {
		op   fsnotify.Op
		want string
	}{
		{fsnotify.Create, "create"},
		{fsnotify.Write, "write"},
		{fsnotify.Remove, "remove"},
		{fsnotify.Rename, "rename"},
		{fsnotify.Chmod, "chmod"},
		{fsnotify.Create | fsnotify.Write, "create"},
		{0, "unknown"},
	}
	for _, tt := range tests {
		if got := eventType(tt.op); got != tt.want {
			t.Errorf("eventType(%v) = %q, want %q", tt.op, got, tt.want)
		}
	}
}

func TestWatcherQueue(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	idx := New(newTestPipeline(t, root, newMemorySink()), nil, Config{Root: root, Walker: ParallelWalkerConfig{SkipHidden: true, NumWorkers: 1}})
	w, err := idx.NewWatcher(time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer w.watcher.Close()

	if w.queue(fsnotify.Event{Name: filepath.Join(root, ".cache", "x.mp4"), Op: fsnotify.Create}) {
		t.Error("hidden path queued")
	}
	if w.queue(fsnotify.Event{Name: filepath.Join(root, "a.mp4"), Op: fsnotify.Chmod}) {
		t.Error("chmod queued")
	}
	path := filepath.Join(root, "b.mp4")
	w.queue(fsnotify.Event{Name: path, Op: fsnotify.Create})
	w.queue(fsnotify.Event{Name: path, Op: fsnotify.Write})
	if op := w.pending[path]; op != fsnotify.Create|fsnotify.Write {
		t.Errorf("coalesced op = %v", op)
	}
}

func TestWatcherUpdatesIndex(t *testing.T) {
	root := mediaTree(t)
	sink := newMemorySink()
	idx := New(newTestPipeline(t, root, sink), nil, Config{Root: root, Workers: 2})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := idx.Index(ctx); err != nil {
		t.Fatal(err)
	}

	w, err := idx.NewWatcher(50 * time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitFor(t, "directories to be watched", func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return len(w.dirs) >= 2
	})

	clip := filepath.Join(root, "films", "clip.mp4")
	writeFile(t, clip, "new clip")
	waitFor(t, "new file to be indexed", func() bool { return sink.has(clip) })

	show := filepath.Join(root, "shows", "pilot.mkv")
	writeFile(t, show, "pilot")
	waitFor(t, "file in new directory to be indexed", func() bool { return sink.has(show) })

	notes := filepath.Join(root, "notes.txt")
	if err := os.Remove(notes); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "removed file to leave the index", func() bool { return !sink.has(notes) })

	movie := filepath.Join(root, "films", "movie.mp4")
	if err := os.Remove(filepath.Join(root, "films", "movie.srt")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "primary rebuilt without its subtitle", func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		units, ok := sink.records[movie]
		if !ok {
			return false
		}
		for _, u := range units {
			if u.SourceType == "subtitle_text" {
				return false
			}
		}
		return true
	})

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}
}
