package indexer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"media-catalog/internal/catalog"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func decodeUnits(t *testing.T, s string) []catalog.CorpusUnit {
	t.Helper()
	var units []catalog.CorpusUnit
	sc := bufio.NewScanner(strings.NewReader(s))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		var u catalog.CorpusUnit
		if err := json.Unmarshal(sc.Bytes(), &u); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		units = append(units, u)
	}
	if err := sc.Err(); err != nil {
		t.Fatal(err)
	}
	return units
}

// memorySink records emitted units per primary path and supports every
// optional sink capability.
type memorySink struct {
	mu        sync.Mutex
	records   map[string][]catalog.CorpusUnit
	prints    map[string]string
	gens      map[string]string
	emitErr   error
	deleted   []string
	emitCalls int
}

func newMemorySink() *memorySink {
	return &memorySink{
		records: make(map[string][]catalog.CorpusUnit),
		prints:  make(map[string]string),
		gens:    make(map[string]string),
	}
}

func (m *memorySink) Emit(_ context.Context, rec *catalog.AssembledRecord, units []catalog.CorpusUnit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emitCalls++
	if m.emitErr != nil {
		return m.emitErr
	}
	path := rec.Primary().Path
	m.records[path] = units
	m.prints[path] = rec.Fingerprint()
	m.gens[path] = rec.Generation()
	return nil
}

func (m *memorySink) Refresh(_ context.Context, path, fingerprint, generation string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fp, ok := m.prints[path]
	if !ok || (fingerprint != "" && fp != fingerprint) {
		return false, nil
	}
	m.gens[path] = generation
	return true, nil
}

func (m *memorySink) RetireGeneration(_ context.Context, generation string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for path, gen := range m.gens {
		if gen != generation {
			delete(m.records, path)
			delete(m.prints, path)
			delete(m.gens, path)
			n++
		}
	}
	return n, nil
}

func (m *memorySink) DeleteRecord(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, path)
	delete(m.records, path)
	delete(m.prints, path)
	delete(m.gens, path)
	return nil
}

func (m *memorySink) has(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[path]
	return ok
}

// emitOnly supports nothing beyond Emit.
type emitOnly struct{ n int }

func (e *emitOnly) Emit(context.Context, *catalog.AssembledRecord, []catalog.CorpusUnit) error {
	e.n++
	return nil
}

func testUnits(path string) []catalog.CorpusUnit {
	return []catalog.CorpusUnit{
		{Text: "movie.mp4 filename: name: movie.mp4", Path: path, PrimaryPath: path, SourceType: catalog.SourceFilename, Kind: catalog.UnitFields},
		{Text: "General Kenobi <b>", Path: path, PrimaryPath: path, SourceType: catalog.SourceSubtitleText, Kind: catalog.UnitText},
	}
}

func TestJSONLSink(t *testing.T) {
	t.Parallel()
	var buf lockedBuffer
	sink := NewJSONLSink(&buf)

	units := testUnits("/media/movie.mp4")
	if err := sink.Emit(context.Background(), nil, units); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	if strings.Count(out, "\n") != len(units) {
		t.Fatalf("want one line per unit, got %q", out)
	}
	if !strings.Contains(out, "<b>") {
		t.Errorf("HTML should not be escaped: %q", out)
	}
	got := decodeUnits(t, out)
	for i, u := range got {
		if u.Path != units[i].Path || u.SourceType != units[i].SourceType || u.Text != units[i].Text {
			t.Errorf("unit %d = %+v, want %+v", i, u, units[i])
		}
	}
}

func TestJSONLSinkCancelled(t *testing.T) {
	t.Parallel()
	var buf lockedBuffer
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewJSONLSink(&buf).Emit(ctx, nil, testUnits("/m.mp4")); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if buf.String() != "" {
		t.Errorf("cancelled emit wrote %q", buf.String())
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestJSONLSinkWriteError(t *testing.T) {
	t.Parallel()
	err := NewJSONLSink(failingWriter{}).Emit(context.Background(), nil, testUnits("/m.mp4"))
	if !catalog.IsKind(err, catalog.KindIO) {
		t.Errorf("err = %v, want IOError", err)
	}
}

func TestTee(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("refresh needs every sink", func(t *testing.T) {
		t.Parallel()
		a := newMemorySink()
		a.prints["/m.mp4"] = "fp"
		tee := Tee{a, &emitOnly{}}
		ok, err := tee.Refresh(ctx, "/m.mp4", "fp", "g2")
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Error("Refresh reported true although one sink cannot refresh")
		}
	})

	t.Run("refresh all capable", func(t *testing.T) {
		t.Parallel()
		a, b := newMemorySink(), newMemorySink()
		a.prints["/m.mp4"], b.prints["/m.mp4"] = "fp", "fp"
		ok, err := Tee{a, b}.Refresh(ctx, "/m.mp4", "fp", "g2")
		if err != nil || !ok {
			t.Errorf("Refresh = %v, %v; want true", ok, err)
		}
	})

	t.Run("emit joins errors", func(t *testing.T) {
		t.Parallel()
		a, b := newMemorySink(), newMemorySink()
		a.emitErr = errors.New("a failed")
		other := &emitOnly{}
		err := Tee{a, other, b}.Emit(ctx, nil, nil)
		if err == nil || !strings.Contains(err.Error(), "a failed") {
			t.Errorf("err = %v", err)
		}
		if other.n != 1 || b.emitCalls != 1 {
			t.Error("a failing sink stopped the others")
		}
	})

	t.Run("retire and delete delegate", func(t *testing.T) {
		t.Parallel()
		a, b := newMemorySink(), newMemorySink()
		a.gens["/old.mp4"], b.gens["/old.mp4"] = "g1", "g1"
		tee := Tee{a, &emitOnly{}, b}
		n, err := tee.RetireGeneration(ctx, "g2")
		if err != nil || n != 2 {
			t.Errorf("RetireGeneration = %d, %v; want 2", n, err)
		}
		if err := tee.DeleteRecord(ctx, "/x.mp4"); err != nil {
			t.Fatal(err)
		}
		if len(a.deleted) != 1 || len(b.deleted) != 1 {
			t.Error("DeleteRecord not delegated")
		}
	})
}
