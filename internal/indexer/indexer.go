package indexer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"media-catalog/internal/catalog"
	"media-catalog/internal/database"
	"media-catalog/internal/logging"
	"media-catalog/internal/memory"
	"media-catalog/internal/metrics"
	"media-catalog/internal/workers"
)

const (
	// Minimum files to process before marking the server as ready
	minFilesForReady = 100

	// Default polling interval for change detection
	defaultPollInterval = 30 * time.Second

	// Upper bound on pipeline workers when none are configured
	maxWorkers = 32
)

// ScanLog records scan passes. *database.Database implements it.
type ScanLog interface {
	BeginScan(ctx context.Context, generation, rootPath string, startedAt time.Time) error
	FinishScan(ctx context.Context, info database.ScanInfo) error
}

// Config configures an Indexer.
type Config struct {
	// Root is the directory tree to scan.
	Root string
	// Workers is the number of pipeline workers (0 = auto).
	Workers int
	// Walker configures the parallel directory walker.
	Walker ParallelWalkerConfig
	// IndexInterval is the period of full re-scans in Start (0 disables them).
	IndexInterval time.Duration
	// PollInterval is the period of lightweight change checks in Start.
	PollInterval time.Duration
	// Memory, if set, holds workers back while the heap is over budget.
	Memory *memory.Monitor
}

// Indexer runs scan passes over the root directory.
type Indexer struct {
	pipeline *Pipeline
	scans    ScanLog
	cfg      Config

	stopChan chan struct{}
	stopOnce sync.Once
	ctx      context.Context
	cancel   context.CancelFunc

	indexMu              sync.Mutex
	isIndexing           bool
	lastIndexTime        time.Time
	lastGeneration       string
	lastReport           *Report
	initialIndexComplete bool
	initialIndexError    error
	startTime            time.Time

	current       atomic.Pointer[Pass]
	indexProgress atomic.Value

	// Callback when a scan pass completes
	onIndexComplete func(*Report)

	state *pollState
}

// IndexProgress tracks the progress of the running scan.
type IndexProgress struct {
	Generation     string    `json:"generation"`
	FilesSeen      int64     `json:"filesSeen"`
	RecordsEmitted int64     `json:"recordsEmitted"`
	Unchanged      int64     `json:"unchanged"`
	IsIndexing     bool      `json:"isIndexing"`
	StartedAt      time.Time `json:"startedAt,omitempty"`
}

// Report summarizes one scan pass.
type Report struct {
	Generation   string           `json:"generation"`
	Status       string           `json:"status"`
	StartedAt    time.Time        `json:"startedAt"`
	Duration     time.Duration    `json:"duration"`
	Files        int              `json:"files"`
	Records      int              `json:"records"`
	Units        int              `json:"units"`
	Unchanged    int              `json:"unchanged"`
	Retired      int              `json:"retired"`
	DroppedFacts int              `json:"droppedFacts"`
	Errors       *catalog.Summary `json:"-"`
}

// New creates an Indexer. scans may be nil when no scan log is kept.
func New(pipeline *Pipeline, scans ScanLog, cfg Config) *Indexer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Walker.NumWorkers == 0 && cfg.Walker.ChannelBuffer == 0 {
		skip := cfg.Walker.SkipHidden
		cfg.Walker = DefaultParallelWalkerConfig()
		cfg.Walker.SkipHidden = skip
	}
	cfg.Workers = workers.Resolve(cfg.Workers, maxWorkers)

	ctx, cancel := context.WithCancel(context.Background())
	idx := &Indexer{
		pipeline:  pipeline,
		scans:     scans,
		cfg:       cfg,
		stopChan:  make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
		state:     newPollState(),
	}
	idx.indexProgress.Store(IndexProgress{})
	return idx
}

// SetOnIndexComplete sets a callback invoked after every finished pass.
func (idx *Indexer) SetOnIndexComplete(callback func(*Report)) {
	idx.onIndexComplete = callback
}

// Start runs an initial scan in the background, then keeps the index fresh
// with change polling and periodic re-scans until Stop.
func (idx *Indexer) Start() error {
	go func() {
		logging.Info("Starting initial index in background...")
		if _, err := idx.Index(idx.ctx); err != nil {
			logging.Error("Initial index error: %v", err)
			idx.indexMu.Lock()
			idx.initialIndexError = err
			idx.indexMu.Unlock()
		}
	}()

	go idx.pollForChanges()

	if idx.cfg.IndexInterval > 0 {
		go idx.periodicIndex()
	}

	return nil
}

// Stop cancels any running scan and stops background work.
func (idx *Indexer) Stop() {
	idx.stopOnce.Do(func() {
		close(idx.stopChan)
		idx.cancel()
	})
}

// Index runs an incremental scan pass. Records whose files are unchanged
// since the last pass are restamped instead of rebuilt.
func (idx *Indexer) Index(ctx context.Context) (*Report, error) {
	return idx.scan(ctx, false)
}

// Rebuild runs a full scan pass that rebuilds every record.
func (idx *Indexer) Rebuild(ctx context.Context) (*Report, error) {
	return idx.scan(ctx, true)
}

// ErrAlreadyIndexing is returned when a pass is requested while another runs.
var ErrAlreadyIndexing = errors.New("index already in progress")

func (idx *Indexer) scan(ctx context.Context, force bool) (*Report, error) {
	if !idx.tryStartIndexing() {
		logging.Info("Index already in progress, skipping...")
		return nil, ErrAlreadyIndexing
	}
	return idx.runScan(ctx, force)
}

// runScan runs one pass. The caller must have claimed the indexing flag.
func (idx *Indexer) runScan(ctx context.Context, force bool) (*Report, error) {
	defer idx.finishIndexing()

	metrics.IndexerIsRunning.Set(1)
	defer metrics.IndexerIsRunning.Set(0)
	metrics.IndexerRunsTotal.Inc()

	startTime := time.Now()
	generation := uuid.NewString()
	logging.Info("Starting scan %s of %s (workers: %d, full: %v)", generation, idx.cfg.Root, idx.cfg.Workers, force)

	ps := idx.pipeline.NewPass(generation)
	ps.Force = force
	idx.current.Store(ps)
	defer idx.current.Store(nil)
	idx.indexProgress.Store(IndexProgress{
		Generation: generation,
		IsIndexing: true,
		StartedAt:  startTime,
	})

	if idx.scans != nil {
		if err := idx.scans.BeginScan(ctx, generation, idx.cfg.Root, startTime); err != nil {
			logging.Warn("Could not record scan start: %v", err)
		}
	}

	walkErr := idx.run(ctx, ps)

	report := &Report{
		Generation:   generation,
		StartedAt:    startTime,
		Files:        int(ps.files.Load()),
		Records:      int(ps.records.Load()),
		Units:        int(ps.units.Load()),
		Unchanged:    int(ps.unchanged.Load()),
		DroppedFacts: ps.summary.DroppedFacts(),
		Errors:       ps.summary,
	}

	switch {
	case ctx.Err() != nil:
		report.Status = database.ScanCancelled
	case walkErr != nil:
		ps.record(walkErr)
		report.Status = database.ScanFailed
	default:
		report.Status = database.ScanCompleted
		report.Retired = idx.retire(ctx, generation)
	}

	invariantErr := ps.InvariantErr()
	if invariantErr != nil && report.Status == database.ScanCompleted {
		report.Status = database.ScanFailed
	}
	report.Duration = time.Since(startTime)

	idx.recordScan(report)
	idx.finalizeIndex(report)

	switch {
	case report.Status == database.ScanCancelled:
		return report, ctx.Err()
	case walkErr != nil:
		return report, errors.Join(walkErr, invariantErr)
	default:
		return report, invariantErr
	}
}

// run walks the root and feeds the events through a worker pool.
func (idx *Indexer) run(ctx context.Context, ps *Pass) error {
	walker := NewParallelWalker(idx.cfg.Root, idx.cfg.Walker)
	events := make(chan catalog.FileEvent, idx.cfg.Walker.ChannelBuffer)

	var walkErr error
	go func() {
		walkErr = walker.Walk(ctx, events)
		close(events)
	}()

	var wg sync.WaitGroup
	for i := 0; i < idx.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range events {
				if idx.cfg.Memory != nil {
					if err := idx.cfg.Memory.Wait(ctx); err != nil {
						continue
					}
				}
				outcome, err := idx.pipeline.Process(ctx, ev, ps, false)
				if err != nil && outcome != OutcomeCancelled {
					logging.Debug("%s: %s (%v)", ev.Path, outcome, err)
				}
				idx.updateProgress(ps)
			}
		}()
	}
	wg.Wait()

	if walkErr != nil && ctx.Err() != nil {
		return nil
	}
	return walkErr
}

// retire drops records of earlier generations once a pass has seen the whole tree.
func (idx *Indexer) retire(ctx context.Context, generation string) int {
	r, ok := idx.pipeline.Sink().(Retirer)
	if !ok {
		return 0
	}
	n, err := r.RetireGeneration(ctx, generation)
	if err != nil {
		logging.Error("Error retiring records of earlier scans: %v", err)
		metrics.IndexerErrors.WithLabelValues(string(catalog.KindIO)).Inc()
	}
	if n > 0 {
		logging.Info("Retired %d records no longer on disk", n)
	}
	return n
}

func (idx *Indexer) recordScan(report *Report) {
	if idx.scans == nil {
		return
	}
	finished := report.StartedAt.Add(report.Duration)
	counts := make(map[string]int)
	for kind, n := range report.Errors.Counts() {
		counts[string(kind)] = n
	}
	info := database.ScanInfo{
		Generation:   report.Generation,
		RootPath:     idx.cfg.Root,
		StartedAt:    report.StartedAt,
		FinishedAt:   &finished,
		Status:       report.Status,
		Files:        report.Files,
		Records:      report.Records,
		Units:        report.Units,
		Retired:      report.Retired,
		DroppedFacts: report.DroppedFacts,
		Errors:       counts,
	}
	// The pass context may already be cancelled; the outcome is still recorded.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := idx.scans.FinishScan(ctx, info); err != nil {
		logging.Warn("Could not record scan result: %v", err)
	}
}

// tryStartIndexing attempts to start indexing, returns false if already in progress.
func (idx *Indexer) tryStartIndexing() bool {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()

	if idx.isIndexing {
		return false
	}
	idx.isIndexing = true
	return true
}

// finishIndexing marks indexing as complete.
func (idx *Indexer) finishIndexing() {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()

	idx.isIndexing = false
	idx.initialIndexComplete = true
}

func (idx *Indexer) updateProgress(ps *Pass) {
	progress := idx.getProgress()
	progress.FilesSeen = ps.files.Load()
	progress.RecordsEmitted = ps.records.Load()
	progress.Unchanged = ps.unchanged.Load()
	idx.indexProgress.Store(progress)
}

func (idx *Indexer) finalizeIndex(report *Report) {
	idx.indexMu.Lock()
	idx.lastIndexTime = time.Now()
	idx.lastReport = report
	if report.Status == database.ScanCompleted {
		idx.lastGeneration = report.Generation
	}
	idx.indexMu.Unlock()

	idx.indexProgress.Store(IndexProgress{
		Generation:     report.Generation,
		FilesSeen:      int64(report.Files),
		RecordsEmitted: int64(report.Records),
		Unchanged:      int64(report.Unchanged),
	})

	if report.Status != database.ScanCancelled {
		idx.state.update(idx.cfg.Root)
	}

	metrics.IndexerLastRunTimestamp.Set(float64(time.Now().Unix()))
	metrics.IndexerLastRunDuration.Set(report.Duration.Seconds())
	metrics.IndexerDroppedFacts.Add(float64(report.DroppedFacts))

	logging.Info("Scan %s %s in %v: %d files, %d records built, %d unchanged, %d units, %d retired, errors: %s",
		report.Generation, report.Status, report.Duration.Round(time.Millisecond),
		report.Files, report.Records, report.Unchanged, report.Units, report.Retired, report.Errors)

	if idx.onIndexComplete != nil {
		idx.onIndexComplete(report)
	}
}

func (idx *Indexer) periodicIndex() {
	ticker := time.NewTicker(idx.cfg.IndexInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			logging.Debug("Periodic re-index triggered")
			if _, err := idx.Index(idx.ctx); err != nil && !errors.Is(err, ErrAlreadyIndexing) {
				logging.Error("periodic re-index failed: %v", err)
			}
		case <-idx.stopChan:
			return
		}
	}
}

// TriggerIndex starts a pass in the background. It reports false when a
// pass is already running.
func (idx *Indexer) TriggerIndex(force bool) bool {
	if !idx.tryStartIndexing() {
		return false
	}
	go func() {
		if _, err := idx.runScan(idx.ctx, force); err != nil {
			logging.Error("manually triggered re-index failed: %v", err)
		}
	}()
	return true
}

// IsIndexing returns whether a scan pass is currently running.
func (idx *Indexer) IsIndexing() bool {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()
	return idx.isIndexing
}

// LastIndexTime returns the time the last pass finished.
func (idx *Indexer) LastIndexTime() time.Time {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()
	return idx.lastIndexTime
}

// LastReport returns the report of the last finished pass, or nil.
func (idx *Indexer) LastReport() *Report {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()
	return idx.lastReport
}

// LastGeneration returns the generation of the last completed pass.
func (idx *Indexer) LastGeneration() string {
	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()
	return idx.lastGeneration
}

func (idx *Indexer) getProgress() IndexProgress {
	if progress, ok := idx.indexProgress.Load().(IndexProgress); ok {
		return progress
	}
	return IndexProgress{}
}

// GetProgress returns the progress of the running pass.
func (idx *Indexer) GetProgress() IndexProgress {
	return idx.getProgress()
}

// IsReady returns true once the first pass finished or enough files were seen.
func (idx *Indexer) IsReady() bool {
	if ps := idx.current.Load(); ps != nil && ps.files.Load() >= minFilesForReady {
		return true
	}

	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()
	return idx.initialIndexComplete
}

// HealthStatus contains health check information.
type HealthStatus struct {
	Ready             bool           `json:"ready"`
	Indexing          bool           `json:"indexing"`
	StartTime         time.Time      `json:"startTime"`
	Uptime            string         `json:"uptime"`
	LastIndexed       time.Time      `json:"lastIndexed,omitempty"`
	LastGeneration    string         `json:"lastGeneration,omitempty"`
	LastStatus        string         `json:"lastStatus,omitempty"`
	InitialIndexError string         `json:"initialIndexError,omitempty"`
	IndexProgress     *IndexProgress `json:"indexProgress,omitempty"`
}

// GetHealthStatus returns detailed health information.
func (idx *Indexer) GetHealthStatus() HealthStatus {
	ready := idx.IsReady()
	progress := idx.getProgress()

	idx.indexMu.Lock()
	defer idx.indexMu.Unlock()

	status := HealthStatus{
		Ready:          ready,
		Indexing:       idx.isIndexing,
		StartTime:      idx.startTime,
		Uptime:         time.Since(idx.startTime).Round(time.Second).String(),
		LastIndexed:    idx.lastIndexTime,
		LastGeneration: idx.lastGeneration,
	}
	if idx.lastReport != nil {
		status.LastStatus = idx.lastReport.Status
	}
	if idx.isIndexing {
		status.IndexProgress = &progress
	}
	if idx.initialIndexError != nil {
		status.InitialIndexError = idx.initialIndexError.Error()
	}
	return status
}
