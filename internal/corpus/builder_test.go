package corpus

import (
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"media-catalog/internal/catalog"
	"media-catalog/internal/mediatypes"
)

func fileRecord(t *testing.T, path string) catalog.FileRecord {
	t.Helper()
	r, err := catalog.NewFileRecord(path, 10, time.Unix(0, 0), mediatypes.DefaultTable())
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func newBuilder(t *testing.T, size, overlap int) *Builder {
	t.Helper()
	b, err := NewBuilder(size, overlap)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestNewBuilderValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		size, overlap int
		ok            bool
	}{
		{512, 50, true},
		{10, 0, true},
		{0, 0, false},
		{10, 10, false},
		{10, -1, false},
	}
	for _, tt := range tests {
		_, err := NewBuilder(tt.size, tt.overlap)
		if (err == nil) != tt.ok {
			t.Errorf("NewBuilder(%d, %d) err = %v, want ok=%v", tt.size, tt.overlap, err, tt.ok)
		}
		if err != nil && !errors.Is(err, catalog.ErrConfiguration) {
			t.Errorf("NewBuilder(%d, %d) err = %v, want ConfigurationError", tt.size, tt.overlap, err)
		}
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()

	movie := fileRecord(t, "/media/movie.mp4")
	srt := fileRecord(t, "/media/movie.srt")
	nfo := fileRecord(t, "/media/movie.nfo")

	facts := []catalog.Fact{
		catalog.NewFact(catalog.SourceFilename, movie.Path, "name", "movie.mp4"),
		catalog.NewFact(catalog.SourceFFprobe, movie.Path, "width", 1920),
		catalog.NewFact(catalog.SourceFFprobe, movie.Path, "height", 1080),
		catalog.NewFact(catalog.SourceSubtitleText, srt.Path, catalog.KeyText, "Hello there\nGeneral Kenobi"),
		catalog.NewFact(catalog.SourceSubtitleText, srt.Path, "line_count", 2),
		catalog.NewFact(catalog.SourceMetaText, nfo.Path, catalog.KeyText, "<title>Arrival</title>"),
	}
	rec := catalog.NewAssembledRecord(movie, []catalog.FileRecord{nfo, srt}, facts, nil, false, "gen-7")

	units, err := newBuilder(t, DefaultChunkSize, DefaultChunkOverlap).Build(rec)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	type summary struct {
		path   string
		source catalog.SourceType
		kind   catalog.UnitKind
	}
	want := []summary{
		{movie.Path, catalog.SourceFilename, catalog.UnitFields},
		{movie.Path, catalog.SourceFFprobe, catalog.UnitFields},
		{srt.Path, catalog.SourceSubtitleText, catalog.UnitFields},
		{srt.Path, catalog.SourceSubtitleText, catalog.UnitText},
		{nfo.Path, catalog.SourceMetaText, catalog.UnitText},
	}
	if len(units) != len(want) {
		t.Fatalf("got %d units, want %d: %+v", len(units), len(want), units)
	}
	for i, w := range want {
		u := units[i]
		if u.Path != w.path || u.SourceType != w.source || u.Kind != w.kind {
			t.Errorf("unit %d = (%s, %s, %s), want (%s, %s, %s)", i, u.Path, u.SourceType, u.Kind, w.path, w.source, w.kind)
		}
		if u.PrimaryPath != movie.Path || u.Generation != "gen-7" {
			t.Errorf("unit %d primary/generation = %s/%s", i, u.PrimaryPath, u.Generation)
		}
	}

	probe := units[1]
	if probe.Text != "[movie.mp4] ffprobe: width: 1920 | height: 1080" {
		t.Errorf("fields text = %q", probe.Text)
	}
	if len(probe.Fields) != 2 || probe.Fields[0] != (catalog.Field{Key: "width", Value: "1920"}) {
		t.Errorf("fields = %+v", probe.Fields)
	}
	if probe.ChunkIndex != nil {
		t.Error("fields units carry no chunk index")
	}

	dialogue := units[3]
	if dialogue.Text != "Hello there\nGeneral Kenobi" || dialogue.ChunkIndex == nil || *dialogue.ChunkIndex != 0 {
		t.Errorf("text unit = %+v", dialogue)
	}
}

func TestBuildArchiveListing(t *testing.T) {
	t.Parallel()

	zip := fileRecord(t, "/media/photos.zip")
	var facts []catalog.Fact
	facts = append(facts, catalog.NewFact(catalog.SourceArchiveListing, zip.Path, "entry_count", 200))
	for i := 0; i < 200; i++ {
		facts = append(facts, catalog.NewFact(catalog.SourceArchiveListing, zip.Path, catalog.KeyEntry,
			"album/IMG_"+strings.Repeat("0", 4)+string(rune('a'+i%26))+".jpg"))
	}
	rec := catalog.NewAssembledRecord(zip, nil, facts, nil, false, "")

	units, err := newBuilder(t, 256, 32).Build(rec)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if units[0].Kind != catalog.UnitFields || units[0].Fields[0].Key != "entry_count" {
		t.Fatalf("first unit = %+v", units[0])
	}
	text := units[1:]
	if len(text) < 2 {
		t.Fatalf("expected the listing to span several chunks, got %d", len(text))
	}
	for i, u := range text {
		if u.Kind != catalog.UnitText || u.SourceType != catalog.SourceArchiveListing {
			t.Errorf("unit %+v", u)
		}
		if u.ChunkIndex == nil || *u.ChunkIndex != i {
			t.Errorf("unit %d chunk index = %v", i, u.ChunkIndex)
		}
		if utf8.RuneCountInString(u.Text) > 256 {
			t.Errorf("chunk %d is %d runes", i, utf8.RuneCountInString(u.Text))
		}
	}
}

func TestBuildRejectsForeignOrigin(t *testing.T) {
	t.Parallel()

	movie := fileRecord(t, "/media/movie.mp4")
	facts := []catalog.Fact{
		catalog.NewFact(catalog.SourceTag, "/elsewhere/other.mp3", "artist", "Adele"),
	}
	rec := catalog.NewAssembledRecord(movie, nil, facts, nil, false, "")

	units, err := newBuilder(t, 64, 8).Build(rec)
	if !errors.Is(err, catalog.ErrInvariant) {
		t.Fatalf("err = %v, want InvariantViolation", err)
	}
	if units != nil {
		t.Errorf("aborted build returned units %+v", units)
	}
}

func TestBuildRejectsUnknownSource(t *testing.T) {
	t.Parallel()

	movie := fileRecord(t, "/media/movie.mp4")
	facts := []catalog.Fact{{Key: "k", Value: "v", Source: "telepathy", Origin: movie.Path}}
	rec := catalog.NewAssembledRecord(movie, nil, facts, nil, false, "")

	if _, err := newBuilder(t, 64, 8).Build(rec); !errors.Is(err, catalog.ErrInvariant) {
		t.Fatalf("err = %v, want InvariantViolation", err)
	}
}

func TestChunk(t *testing.T) {
	t.Parallel()

	t.Run("short text is one chunk", func(t *testing.T) {
		got := Chunk("  hello  ", 10, 2)
		if len(got) != 1 || got[0] != "hello" {
			t.Errorf("Chunk = %q", got)
		}
	})

	t.Run("empty and blank", func(t *testing.T) {
		if got := Chunk("", 10, 2); got != nil {
			t.Errorf("Chunk(\"\") = %q", got)
		}
		if got := Chunk("   \n  ", 10, 2); got != nil {
			t.Errorf("Chunk(blank) = %q", got)
		}
	})

	t.Run("windows overlap", func(t *testing.T) {
		got := Chunk("abcdefghijklmnopqrst", 8, 3)
		want := []string{"abcdefgh", "fghijklm", "klmnopqr", "pqrst"}
		if strings.Join(got, ",") != strings.Join(want, ",") {
			t.Errorf("Chunk = %q, want %q", got, want)
		}
	})

	t.Run("prefers line boundaries", func(t *testing.T) {
		got := Chunk("first line\nsecond line\nthird", 16, 0)
		if len(got) == 0 || got[0] != "first line" {
			t.Errorf("Chunk = %q, want first chunk cut at the newline", got)
		}
	})

	t.Run("counts runes not bytes", func(t *testing.T) {
		text := strings.Repeat("日本語", 10)
		for _, c := range Chunk(text, 7, 2) {
			if n := utf8.RuneCountInString(c); n > 7 {
				t.Errorf("chunk %q has %d runes", c, n)
			}
			if !utf8.ValidString(c) {
				t.Errorf("chunk %q is not valid UTF-8", c)
			}
		}
	})

	t.Run("covers the whole text", func(t *testing.T) {
		text := strings.Repeat("0123456789\n", 30)
		chunks := Chunk(text, 25, 5)
		last := chunks[len(chunks)-1]
		if !strings.HasSuffix(last, "0123456789") {
			t.Errorf("last chunk %q does not reach the end", last)
		}
	})
}
