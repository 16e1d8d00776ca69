package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"media-catalog/internal/catalog"
)

// Sink consumes the units built for one record. Emit replaces whatever the
// sink holds for the record's files.
type Sink interface {
	Emit(ctx context.Context, rec *catalog.AssembledRecord, units []catalog.CorpusUnit) error
}

// Refresher is implemented by sinks that can keep an unchanged record and
// restamp it with the current generation instead of receiving it again.
type Refresher interface {
	Refresh(ctx context.Context, path, fingerprint, generation string) (bool, error)
}

// Retirer is implemented by sinks that drop records of earlier generations
// after a complete pass.
type Retirer interface {
	RetireGeneration(ctx context.Context, generation string) (int, error)
}

// Remover is implemented by sinks that can drop a single record, used by
// watch mode when a file disappears.
type Remover interface {
	DeleteRecord(ctx context.Context, path string) error
}

// JSONLSink writes one JSON object per unit, one per line, for external
// embedding pipelines.
type JSONLSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONLSink writes to w.
func NewJSONLSink(w io.Writer) *JSONLSink {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLSink{enc: enc}
}

// Emit writes units in order. A record's units are written without
// interleaving with other records.
func (s *JSONLSink) Emit(ctx context.Context, _ *catalog.AssembledRecord, units []catalog.CorpusUnit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range units {
		if err := s.enc.Encode(&units[i]); err != nil {
			return catalog.NewError(catalog.KindIO, "write jsonl", units[i].Path, err)
		}
	}
	return nil
}

// Tee fans records out to several sinks.
type Tee []Sink

// Emit sends to every sink and joins their errors.
func (t Tee) Emit(ctx context.Context, rec *catalog.AssembledRecord, units []catalog.CorpusUnit) error {
	var errs []error
	for _, s := range t {
		if err := s.Emit(ctx, rec, units); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Refresh restamps the record in sinks that support it. It reports false if
// any sink lacks the capability or did not hold a matching record.
func (t Tee) Refresh(ctx context.Context, path, fingerprint, generation string) (bool, error) {
	all := len(t) > 0
	for _, s := range t {
		r, ok := s.(Refresher)
		if !ok {
			all = false
			continue
		}
		done, err := r.Refresh(ctx, path, fingerprint, generation)
		if err != nil {
			return false, err
		}
		all = all && done
	}
	return all, nil
}

// RetireGeneration retires in every sink that supports it.
func (t Tee) RetireGeneration(ctx context.Context, generation string) (int, error) {
	total := 0
	var errs []error
	for _, s := range t {
		if r, ok := s.(Retirer); ok {
			n, err := r.RetireGeneration(ctx, generation)
			total += n
			if err != nil {
				errs = append(errs, err)
			}
		}
	}
	return total, errors.Join(errs...)
}

// DeleteRecord deletes from every sink that supports it.
func (t Tee) DeleteRecord(ctx context.Context, path string) error {
	var errs []error
	for _, s := range t {
		if r, ok := s.(Remover); ok {
			if err := r.DeleteRecord(ctx, path); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
