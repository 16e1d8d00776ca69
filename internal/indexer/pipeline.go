package indexer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"media-catalog/internal/assembler"
	"media-catalog/internal/catalog"
	"media-catalog/internal/corpus"
	"media-catalog/internal/filesystem"
	"media-catalog/internal/logging"
	"media-catalog/internal/mediatypes"
	"media-catalog/internal/metrics"
	"media-catalog/internal/producers"
)

// Outcome says what happened to one file event.
type Outcome int

const (
	// OutcomeEmitted means a new record was built and written to the sink.
	OutcomeEmitted Outcome = iota
	// OutcomeUnchanged means the sink already held the record.
	OutcomeUnchanged
	// OutcomeClaimed means the file is a sidecar handled with its primary.
	OutcomeClaimed
	// OutcomeSkipped means the file is not indexed (unknown category, outside root).
	OutcomeSkipped
	// OutcomeFailed means no record could be emitted for the file.
	OutcomeFailed
	// OutcomeCancelled means the context ended before emission.
	OutcomeCancelled
)

var outcomeNames = [...]string{"emitted", "unchanged", "claimed", "skipped", "failed", "cancelled"}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return "unknown"
}

// PipelineConfig wires a Pipeline.
type PipelineConfig struct {
	Table        *mediatypes.Table
	Registry     *producers.Registry
	Runner       *producers.Runner
	Builder      *corpus.Builder
	Sink         Sink
	AllowedRoot  string
	IndexUnknown bool
	SkipHidden   bool
	DirCacheSize int
}

// Pipeline runs producers, the assembler and the corpus builder for one
// file and hands the result to the sink.
type Pipeline struct {
	cfg PipelineConfig
	log logging.Logger
}

// NewPipeline validates cfg.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	switch {
	case cfg.Registry == nil:
		return nil, catalog.Errorf(catalog.KindConfiguration, "new pipeline", "", "no producer registry")
	case cfg.Builder == nil:
		return nil, catalog.Errorf(catalog.KindConfiguration, "new pipeline", "", "no corpus builder")
	case cfg.Sink == nil:
		return nil, catalog.Errorf(catalog.KindConfiguration, "new pipeline", "", "no sink")
	case cfg.AllowedRoot == "":
		return nil, catalog.Errorf(catalog.KindConfiguration, "new pipeline", "", "allowed_root is required")
	}
	if cfg.Table == nil {
		cfg.Table = mediatypes.DefaultTable()
	}
	if cfg.Runner == nil {
		cfg.Runner = producers.NewRunner(0)
	}
	return &Pipeline{cfg: cfg, log: logging.For("pipeline")}, nil
}

// Sink returns the sink records are emitted to.
func (p *Pipeline) Sink() Sink { return p.cfg.Sink }

// Pass carries the state of one scan pass shared by all workers.
type Pass struct {
	Generation string
	// Force rebuilds records even when the sink reports them unchanged.
	Force bool

	summary *catalog.Summary
	dirs    *dirCache

	files     atomic.Int64
	records   atomic.Int64
	units     atomic.Int64
	unchanged atomic.Int64

	mu         sync.Mutex
	invariants []error
}

// NewPass starts a pass stamped with generation.
func (p *Pipeline) NewPass(generation string) *Pass {
	return &Pass{
		Generation: generation,
		summary:    catalog.NewSummary(),
		dirs:       newDirCache(p.cfg.DirCacheSize, p.cfg.Table, p.cfg.SkipHidden),
	}
}

// Summary returns the pass's error counts.
func (ps *Pass) Summary() *catalog.Summary { return ps.summary }

func (ps *Pass) record(err error) {
	if err == nil {
		return
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			ps.record(e)
		}
		return
	}
	kind := catalog.KindOf(err)
	ps.summary.Add(kind, 1)
	metrics.IndexerErrors.WithLabelValues(string(kind)).Inc()
	if kind == catalog.KindInvariant {
		ps.mu.Lock()
		ps.invariants = append(ps.invariants, err)
		ps.mu.Unlock()
	}
}

// InvariantErr joins the invariant violations seen during the pass.
func (ps *Pass) InvariantErr() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return errors.Join(ps.invariants...)
}

// Process handles one file event. When follow is set and the file is a
// sidecar claimed by a primary, the primary's record is rebuilt instead.
func (p *Pipeline) Process(ctx context.Context, ev catalog.FileEvent, ps *Pass, follow bool) (Outcome, error) {
	if ctx.Err() != nil {
		return OutcomeCancelled, ctx.Err()
	}

	rec, err := catalog.RecordFromEvent(ev, p.cfg.Table)
	if err != nil {
		ps.record(err)
		return OutcomeFailed, err
	}
	ps.files.Add(1)
	metrics.IndexerFilesProcessed.Inc()

	if !filesystem.Within(p.cfg.AllowedRoot, rec.Path) {
		err := catalog.Errorf(catalog.KindPathTraversal, "process", rec.Path, "outside allowed root %s", p.cfg.AllowedRoot)
		p.log.Warn("Skipping %v", err)
		ps.record(err)
		return OutcomeSkipped, err
	}

	if rec.Category == mediatypes.CategoryUnknown && !p.cfg.IndexUnknown {
		p.log.Debug("Skipping %s: unknown category", rec.Path)
		return OutcomeSkipped, nil
	}

	siblings, err := ps.dirs.Directory(rec.Dir())
	if err != nil {
		p.log.Warn("Sidecar discovery failed for %s: %v", rec.Path, err)
		ps.record(err)
	}

	if primary, ok := siblings.ClaimedBy(rec.Path); ok && rec.Category.IsSidecar() {
		if !follow {
			return OutcomeClaimed, nil
		}
		rec = primary
	}

	linked := assembler.Linked{Primary: rec}
	if g, ok := siblings.Linked(rec.Path); ok {
		linked.Sidecars = g.Sidecars
		linked.Ambiguous = g.Ambiguous
	}

	return p.build(ctx, linked, ps)
}

func (p *Pipeline) build(ctx context.Context, linked assembler.Linked, ps *Pass) (Outcome, error) {
	primary := linked.Primary
	refresher, canRefresh := p.cfg.Sink.(Refresher)

	if canRefresh && !ps.Force {
		fp := catalog.Fingerprint(primary, linked.Sidecars)
		done, err := refresher.Refresh(ctx, primary.Path, fp, ps.Generation)
		if err != nil {
			p.log.Warn("Refresh check failed for %s: %v", primary.Path, err)
		} else if done {
			ps.unchanged.Add(1)
			return OutcomeUnchanged, nil
		}
	}

	out := p.cfg.Runner.RunAll(ctx, p.cfg.Registry.For(primary.Category), primary)
	ps.record(out.Err())

	sidecars := make([]assembler.Sidecar, 0, len(linked.Sidecars))
	for _, s := range linked.Sidecars {
		sout := p.cfg.Runner.RunAll(ctx, p.cfg.Registry.For(s.Category), s)
		ps.record(sout.Err())
		sidecars = append(sidecars, assembler.Sidecar{Record: s, Facts: sout.Facts})
	}

	rec := assembler.Assemble(primary, out.Facts, sidecars,
		assembler.WithGeneration(ps.Generation),
		assembler.WithArchiveListing(out.Listing),
		assembler.WithAmbiguous(linked.Ambiguous),
		assembler.WithSummary(ps.summary),
	)

	units, err := p.cfg.Builder.Build(rec)
	if err != nil {
		p.log.Error("Corpus build failed for %s: %v", primary.Path, err)
		ps.record(err)
		p.keepPrevious(ctx, primary.Path, ps)
		return OutcomeFailed, err
	}

	if ctx.Err() != nil {
		return OutcomeCancelled, ctx.Err()
	}

	if err := p.cfg.Sink.Emit(ctx, rec, units); err != nil {
		if !errors.As(err, new(*catalog.Error)) {
			err = catalog.NewError(catalog.KindIO, "emit", primary.Path, err)
		}
		p.log.Error("Emit failed for %s: %v", primary.Path, err)
		ps.record(err)
		p.keepPrevious(context.Background(), primary.Path, ps)
		return OutcomeFailed, err
	}

	ps.records.Add(1)
	ps.units.Add(int64(len(units)))
	metrics.IndexerRecordsEmitted.Inc()
	for _, u := range units {
		metrics.IndexerUnitsEmitted.WithLabelValues(string(u.SourceType)).Inc()
	}
	return OutcomeEmitted, nil
}

// keepPrevious restamps whatever the sink already holds for path so the
// end-of-pass retirement does not drop a file that merely failed this time.
func (p *Pipeline) keepPrevious(ctx context.Context, path string, ps *Pass) {
	r, ok := p.cfg.Sink.(Refresher)
	if !ok {
		return
	}
	if _, err := r.Refresh(ctx, path, "", ps.Generation); err != nil {
		p.log.Warn("Could not keep previous record for %s: %v", path, err)
	}
}
