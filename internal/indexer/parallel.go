package indexer

import (
	"context"
	"io/fs"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"media-catalog/internal/catalog"
	"media-catalog/internal/filesystem"
	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
	"media-catalog/internal/workers"
)

// ParallelWalkerConfig configures the parallel directory walker
type ParallelWalkerConfig struct {
	// NumWorkers is the number of parallel stat workers (0 = auto based on CPU)
	NumWorkers int
	// ChannelBuffer is the size of the work channel buffer
	ChannelBuffer int
	// SkipHidden skips files and directories starting with "."
	SkipHidden bool
}

// DefaultParallelWalkerConfig returns sensible defaults based on available resources.
// INDEX_WORKERS overrides the worker count.
func DefaultParallelWalkerConfig() ParallelWalkerConfig {
	return ParallelWalkerConfig{
		NumWorkers:    workers.ForIO(16),
		ChannelBuffer: 1000,
		SkipHidden:    true,
	}
}

// fileJob is one directory entry waiting to be stat'ed
type fileJob struct {
	path  string
	entry fs.DirEntry
}

// ParallelWalker walks a directory tree and reports every regular file as a
// FileEvent. Directory traversal is sequential; stat calls are spread over
// NumWorkers goroutines.
type ParallelWalker struct {
	config ParallelWalkerConfig
	root   string
	retry  filesystem.RetryConfig

	filesSeen   atomic.Int64
	foldersSeen atomic.Int64
	errorsCount atomic.Int64
}

// NewParallelWalker creates a new parallel directory walker
func NewParallelWalker(root string, config ParallelWalkerConfig) *ParallelWalker {
	if config.NumWorkers < 1 {
		config.NumWorkers = workers.ForIO(16)
	}
	if config.ChannelBuffer < 0 {
		config.ChannelBuffer = 0
	}
	return &ParallelWalker{
		config: config,
		root:   root,
		retry:  filesystem.DefaultRetryConfig(),
	}
}

// Walk sends a FileEvent for every file under the root to out and returns
// when the tree has been walked or ctx is cancelled. It does not close out.
// Unreadable entries are logged and skipped; only a failure to read the root
// itself is returned.
func (pw *ParallelWalker) Walk(ctx context.Context, out chan<- catalog.FileEvent) error {
	logging.Info("Starting parallel directory walk of %s with %d workers", pw.root, pw.config.NumWorkers)
	startTime := time.Now()

	metrics.IndexerParallelWorkers.Set(float64(pw.config.NumWorkers))

	if _, err := filesystem.StatWithRetry(pw.root, pw.retry); err != nil {
		return catalog.NewError(catalog.KindIO, "walk", pw.root, err)
	}

	jobs := make(chan fileJob, pw.config.ChannelBuffer)
	var wg sync.WaitGroup
	for i := 0; i < pw.config.NumWorkers; i++ {
		wg.Add(1)
		go pw.worker(ctx, i, jobs, out, &wg)
	}

	err := pw.walkAndEnqueue(ctx, jobs)
	close(jobs)
	wg.Wait()

	logging.Info("Parallel walk complete: %d files, %d folders in %v (errors: %d)",
		pw.filesSeen.Load(),
		pw.foldersSeen.Load(),
		time.Since(startTime),
		pw.errorsCount.Load())

	if err == nil {
		err = ctx.Err()
	}
	return err
}

// walkAndEnqueue walks the directory tree and sends jobs to workers
func (pw *ParallelWalker) walkAndEnqueue(ctx context.Context, jobs chan<- fileJob) error {
	err := filepath.WalkDir(pw.root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return fs.SkipAll
		}

		if err != nil {
			pw.errorsCount.Add(1)
			logging.Warn("Error accessing path %s: %v", path, err)
			return nil
		}

		if path == pw.root {
			return nil
		}

		if pw.config.SkipHidden && filesystem.IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			pw.foldersSeen.Add(1)
			return nil
		}
		if !d.Type().IsRegular() {
			logging.Debug("Skipping non-regular file %s (%v)", path, d.Type())
			return nil
		}

		select {
		case jobs <- fileJob{path: path, entry: d}:
		case <-ctx.Done():
			return fs.SkipAll
		}
		return nil
	})
	if err == fs.SkipAll {
		return nil
	}
	return err
}

// worker turns jobs into events
func (pw *ParallelWalker) worker(ctx context.Context, id int, jobs <-chan fileJob, out chan<- catalog.FileEvent, wg *sync.WaitGroup) {
	defer wg.Done()

	logging.Debug("Walker worker %d started", id)

	for job := range jobs {
		if ctx.Err() != nil {
			continue
		}

		info, err := job.entry.Info()
		if err != nil {
			// The entry may have vanished or be on a flaky mount; retry once via stat.
			info, err = filesystem.StatWithRetry(job.path, pw.retry)
		}
		if err != nil {
			pw.errorsCount.Add(1)
			logging.Warn("Error getting info for %s: %v", job.path, err)
			continue
		}
		pw.filesSeen.Add(1)

		select {
		case out <- catalog.FileEvent{Path: job.path, Size: info.Size(), ModTime: info.ModTime()}:
		case <-ctx.Done():
		}
	}

	logging.Debug("Walker worker %d finished", id)
}

// Stats returns current processing statistics
func (pw *ParallelWalker) Stats() (files, folders, errors int64) {
	return pw.filesSeen.Load(), pw.foldersSeen.Load(), pw.errorsCount.Load()
}
