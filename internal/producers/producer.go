package producers

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"media-catalog/internal/catalog"
	"media-catalog/internal/logging"
	"media-catalog/internal/mediatypes"
	"media-catalog/internal/metrics"
)

// Producer extracts facts about one file.
type Producer interface {
	Name() string
	Source() catalog.SourceType
	Produce(ctx context.Context, rec catalog.FileRecord) ([]catalog.Fact, error)
}

// ListingProducer is a Producer that also returns an archive listing.
type ListingProducer interface {
	Producer
	ProduceListing(ctx context.Context, rec catalog.FileRecord) (*catalog.ArchiveListing, []catalog.Fact, error)
}

// Registry maps categories to an ordered list of producers.
type Registry struct {
	mu         sync.RWMutex
	byCategory map[mediatypes.Category][]Producer
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byCategory: make(map[mediatypes.Category][]Producer)}
}

// Register appends p to the producers run for cat.
func (r *Registry) Register(cat mediatypes.Category, p Producer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byCategory[cat] = append(r.byCategory[cat], p)
}

// RegisterAll appends p to every category.
func (r *Registry) RegisterAll(p Producer) {
	for _, cat := range mediatypes.AllCategories {
		r.Register(cat, p)
	}
}

// For returns the producers for cat in registration order.
func (r *Registry) For(cat mediatypes.Category) []Producer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Producer(nil), r.byCategory[cat]...)
}

// Output collects everything the producers returned for one file.
type Output struct {
	Facts   []catalog.Fact
	Listing *catalog.ArchiveListing
	Errors  []error
}

// Err joins the recorded errors.
func (o Output) Err() error {
	return errors.Join(o.Errors...)
}

// Runner invokes producers with a per-call timeout and turns panics and
// timeouts into ProducerErrors.
type Runner struct {
	Timeout time.Duration
	log     logging.Logger
}

// NewRunner returns a Runner. A zero timeout means calls are bounded only by ctx.
func NewRunner(timeout time.Duration) *Runner {
	return &Runner{Timeout: timeout, log: logging.For("producers")}
}

type callResult struct {
	facts   []catalog.Fact
	listing *catalog.ArchiveListing
	err     error
}

// Call runs a single producer against rec.
func (r *Runner) Call(ctx context.Context, p Producer, rec catalog.FileRecord) ([]catalog.Fact, *catalog.ArchiveListing, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan callResult, 1)
	go func() {
		defer func() {
			if v := recover(); v != nil {
				r.log.Error("Producer %s panicked on %s: %v\n%s", p.Name(), rec.Path, v, debug.Stack())
				done <- callResult{err: catalog.Errorf(catalog.KindProducer, p.Name(), rec.Path, "panic: %v", v)}
			}
		}()
		if lp, ok := p.(ListingProducer); ok {
			listing, facts, err := lp.ProduceListing(ctx, rec)
			done <- callResult{facts: facts, listing: listing, err: err}
			return
		}
		facts, err := p.Produce(ctx, rec)
		done <- callResult{facts: facts, err: err}
	}()

	var res callResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res = callResult{err: catalog.NewError(catalog.KindProducer, p.Name(), rec.Path,
			fmt.Errorf("timed out after %v: %w", time.Since(start).Round(time.Millisecond), ctx.Err()))}
	}

	metrics.ProducerDuration.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())
	status := "success"
	if res.err != nil {
		status = "error"
		var ce *catalog.Error
		if !errors.As(res.err, &ce) {
			res.err = catalog.NewError(catalog.KindProducer, p.Name(), rec.Path, res.err)
		}
	}
	metrics.ProducerCallsTotal.WithLabelValues(p.Name(), status).Inc()

	return res.facts, res.listing, res.err
}

// RunAll invokes every producer in order. Failures are recorded in Output
// and surface as producer_error facts; they never stop the remaining producers.
func (r *Runner) RunAll(ctx context.Context, producers []Producer, rec catalog.FileRecord) Output {
	var out Output
	for _, p := range producers {
		if ctx.Err() != nil {
			out.Errors = append(out.Errors, catalog.NewError(catalog.KindIO, "produce", rec.Path, ctx.Err()))
			return out
		}
		facts, listing, err := r.Call(ctx, p, rec)
		out.Facts = append(out.Facts, facts...)
		if listing != nil {
			out.Listing = listing
		}
		if err != nil {
			r.log.Warn("%s failed for %s: %v", p.Name(), rec.Path, err)
			out.Errors = append(out.Errors, err)
			if catalog.IsKind(err, catalog.KindProducer) {
				out.Facts = append(out.Facts, catalog.NewFact(p.Source(), rec.Path, catalog.KeyProducerError,
					fmt.Sprintf("%s: %v", p.Name(), errors.Unwrap(err))))
			}
		}
	}
	return out
}
