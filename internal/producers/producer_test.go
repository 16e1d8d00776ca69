package producers

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"media-catalog/internal/catalog"
	"media-catalog/internal/mediatypes"
)

// writeFile creates name under dir and returns its FileRecord.
func writeFile(t *testing.T, dir, name string, data []byte) catalog.FileRecord {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(p)
	if err != nil {
		t.Fatal(err)
	}
	rec, err := catalog.NewFileRecord(p, info.Size(), info.ModTime(), mediatypes.DefaultTable())
	if err != nil {
		t.Fatal(err)
	}
	return rec
}

func values(facts []catalog.Fact, key string) []string {
	var out []string
	for _, f := range facts {
		if f.Key == key {
			out = append(out, f.Value)
		}
	}
	return out
}

func value(facts []catalog.Fact, key string) string {
	if v := values(facts, key); len(v) > 0 {
		return v[0]
	}
	return ""
}

type stubProducer struct {
	name  string
	facts []catalog.Fact
	err   error
	panic bool
	delay time.Duration
}

func (s *stubProducer) Name() string               { return s.name }
func (s *stubProducer) Source() catalog.SourceType { return catalog.SourceTag }

func (s *stubProducer) Produce(ctx context.Context, _ catalog.FileRecord) ([]catalog.Fact, error) {
	if s.panic {
		panic("boom")
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.facts, s.err
}

func TestRegistryOrder(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	a := &stubProducer{name: "a"}
	b := &stubProducer{name: "b"}
	r.RegisterAll(a)
	r.Register(mediatypes.CategoryAudio, b)

	got := r.For(mediatypes.CategoryAudio)
	if len(got) != 2 || got[0].Name() != "a" || got[1].Name() != "b" {
		t.Fatalf("For(audio) = %v, want [a b]", got)
	}
	if got := r.For(mediatypes.CategoryVideo); len(got) != 1 {
		t.Errorf("For(video) has %d producers, want 1", len(got))
	}

	// The returned slice is a copy.
	got[0] = b
	if r.For(mediatypes.CategoryAudio)[0].Name() != "a" {
		t.Error("mutating For() result changed the registry")
	}
}

func TestDefaultRegistry(t *testing.T) {
	t.Parallel()

	r, err := DefaultRegistry(Options{})
	if err != nil {
		t.Fatalf("DefaultRegistry: %v", err)
	}

	tests := []struct {
		cat  mediatypes.Category
		want []string
	}{
		{mediatypes.CategoryVideo, []string{"filename", "mediaprobe"}},
		{mediatypes.CategoryAudio, []string{"filename", "audiotag", "mediaprobe"}},
		{mediatypes.CategoryImage, []string{"filename", "imageexif"}},
		{mediatypes.CategoryArchive, []string{"filename"}},
		{mediatypes.CategorySubtitle, []string{"filename", "subtitle_text"}},
		{mediatypes.CategoryNote, []string{"filename", "note_text"}},
		{mediatypes.CategoryMeta, []string{"filename", "meta_text"}},
		{mediatypes.CategoryUnknown, []string{"filename"}},
	}
	for _, tt := range tests {
		var names []string
		for _, p := range r.For(tt.cat) {
			names = append(names, p.Name())
		}
		if len(names) != len(tt.want) {
			t.Errorf("%s: producers = %v, want %v", tt.cat, names, tt.want)
			continue
		}
		for i := range names {
			if names[i] != tt.want[i] {
				t.Errorf("%s: producers = %v, want %v", tt.cat, names, tt.want)
				break
			}
		}
	}

	if _, err := DefaultRegistry(Options{Text: SidecarTextConfig{Encoding: "no-such-encoding"}}); !errors.Is(err, catalog.ErrConfiguration) {
		t.Errorf("unknown encoding: err = %v, want ConfigurationError", err)
	}
}

func TestRunnerRecoversFailures(t *testing.T) {
	t.Parallel()

	rec := catalog.FileRecord{Path: "/media/song.mp3", Name: "song.mp3"}
	good := &stubProducer{name: "good", facts: []catalog.Fact{catalog.NewFact(catalog.SourceTag, rec.Path, "artist", "Adele")}}
	panics := &stubProducer{name: "panics", panic: true}
	fails := &stubProducer{name: "fails", err: errors.New("unreadable frame")}
	slow := &stubProducer{name: "slow", delay: 5 * time.Second}

	runner := NewRunner(50 * time.Millisecond)
	out := runner.RunAll(context.Background(), []Producer{panics, fails, slow, good}, rec)

	if len(out.Errors) != 3 {
		t.Fatalf("got %d errors, want 3: %v", len(out.Errors), out.Errors)
	}
	for _, err := range out.Errors {
		if !errors.Is(err, catalog.ErrProducer) {
			t.Errorf("error %v is not a ProducerError", err)
		}
	}
	if got := value(out.Facts, "artist"); got != "Adele" {
		t.Errorf("artist = %q, want Adele; later producers must still run", got)
	}
	if got := len(values(out.Facts, catalog.KeyProducerError)); got != 3 {
		t.Errorf("got %d producer_error facts, want 3", got)
	}
	for _, f := range out.Facts {
		if err := f.Validate(); err != nil {
			t.Errorf("invalid fact: %v", err)
		}
	}
}

func TestRunnerCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := NewRunner(0).RunAll(ctx, []Producer{&stubProducer{name: "a"}}, catalog.FileRecord{Path: "/x"})
	if len(out.Errors) != 1 || !errors.Is(out.Err(), catalog.ErrIO) {
		t.Errorf("cancelled run errors = %v, want one IOError", out.Errors)
	}
}

func TestContextFileStopsReads(t *testing.T) {
	t.Parallel()

	rec := writeFile(t, t.TempDir(), "notes.txt", []byte("0123456789"))
	f, err := os.Open(rec.Path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	r := newContextFile(ctx, f)
	buf := make([]byte, 4)
	if n, err := r.Read(buf); err != nil || n != 4 {
		t.Fatalf("Read before cancel = %d, %v", n, err)
	}

	cancel()
	if _, err := r.Read(buf); !errors.Is(err, context.Canceled) {
		t.Errorf("Read after cancel = %v", err)
	}
	if _, err := r.ReadAt(buf, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("ReadAt after cancel = %v", err)
	}
	if _, err := r.Seek(0, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("Seek after cancel = %v", err)
	}
}

func TestFileProducersStopWhenCancelled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	notes, err := NewSidecarText(catalog.SourceNoteText, SidecarTextConfig{})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		producer Producer
		rec      catalog.FileRecord
	}{
		{&AudioTag{}, writeFile(t, dir, "hello.mp3", id3v1("Hello", "Adele", "25", "2015", 1, 13))},
		{notes, writeFile(t, dir, "readme.txt", []byte("some notes\n"))},
		{NewImageExif(), writeFile(t, dir, "broken.jpg", []byte("not an image"))},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, tt := range tests {
		facts, err := tt.producer.Produce(ctx, tt.rec)
		if !errors.Is(err, catalog.ErrProducer) {
			t.Errorf("%s: err = %v, want ProducerError", tt.producer.Name(), err)
		}
		if len(facts) != 0 {
			t.Errorf("%s: facts %+v after cancellation", tt.producer.Name(), facts)
		}
	}
}

func TestFilename(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rec := writeFile(t, dir, "Shows/Pilot.Episode.MKV", []byte("data"))

	facts, err := (&Filename{}).Produce(context.Background(), rec)
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]string{
		"name":       "Pilot.Episode.MKV",
		"stem":       "Pilot.Episode",
		"extension":  ".mkv",
		"folder":     "Shows",
		"size_bytes": "4",
		"category":   "video",
		"mime_type":  "video/x-matroska",
	}
	for key, w := range want {
		if got := value(facts, key); got != w {
			t.Errorf("%s = %q, want %q", key, got, w)
		}
	}
	if _, err := time.Parse(time.RFC3339, value(facts, "modified_time")); err != nil {
		t.Errorf("modified_time not RFC 3339: %v", err)
	}
	for _, f := range facts {
		if f.Source != catalog.SourceFilename || f.Origin != rec.Path {
			t.Errorf("fact %+v has wrong provenance", f)
		}
	}
}
