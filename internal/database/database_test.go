package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"media-catalog/internal/catalog"
	"media-catalog/internal/corpus"
	"media-catalog/internal/mediatypes"
)

func setupTestDB(t testing.TB) (db *Database, dbPath string) {
	t.Helper()

	dbPath = filepath.Join(t.TempDir(), "test.db")
	db, err := New(context.Background(), dbPath, nil)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, dbPath
}

func fileRecord(t testing.TB, path string, size int64) catalog.FileRecord {
	t.Helper()
	r, err := catalog.NewFileRecord(path, size, time.Unix(1700000000, 0), mediatypes.DefaultTable())
	if err != nil {
		t.Fatal(err)
	}
	return r
}

// emit builds units for rec with the default chunking policy and stores them.
func emit(t testing.TB, db *Database, rec *catalog.AssembledRecord) []catalog.CorpusUnit {
	t.Helper()
	b, err := corpus.NewBuilder(corpus.DefaultChunkSize, corpus.DefaultChunkOverlap)
	if err != nil {
		t.Fatal(err)
	}
	units, err := b.Build(rec)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := db.Emit(context.Background(), rec, units); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	return units
}

func songRecord(t testing.TB, gen string) *catalog.AssembledRecord {
	song := fileRecord(t, "/media/music/hello.mp3", 4096)
	facts := []catalog.Fact{
		catalog.NewFact(catalog.SourceFilename, song.Path, "name", song.Name),
		catalog.NewFact(catalog.SourceTag, song.Path, "artist", "Adele"),
		catalog.NewFact(catalog.SourceTag, song.Path, "title", "Hello"),
	}
	return catalog.NewAssembledRecord(song, nil, facts, nil, false, gen)
}

func movieRecord(t testing.TB, gen string) *catalog.AssembledRecord {
	movie := fileRecord(t, "/media/films/movie.mp4", 1<<20)
	srt := fileRecord(t, "/media/films/movie.srt", 120)
	nfo := fileRecord(t, "/media/films/movie.nfo", 64)
	facts := []catalog.Fact{
		catalog.NewFact(catalog.SourceFFprobe, movie.Path, "width", 1920),
		catalog.NewFact(catalog.SourceSubtitleText, srt.Path, catalog.KeyText, "Hello there\nGeneral Kenobi"),
		catalog.NewFact(catalog.SourceMetaText, nfo.Path, catalog.KeyText, "<title>Arrival</title>"),
	}
	return catalog.NewAssembledRecord(movie, []catalog.FileRecord{nfo, srt}, facts, nil, false, gen)
}

func TestRecordQuery(t *testing.T) {
	t.Parallel()

	start := time.Now()
	recordQuery("emit_record", start, nil)
	recordQuery("emit_record", start, errors.New("test error"))
}

func TestNewReadOnlyMissingIndex(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "absent.db")
	_, err := New(context.Background(), dbPath, &Options{ReadOnly: true})
	if !errors.Is(err, catalog.ErrIndexNotFound) {
		t.Fatalf("err = %v, want ErrIndexNotFound", err)
	}
	if _, statErr := os.Stat(dbPath); !errors.Is(statErr, os.ErrNotExist) {
		t.Error("read-only open must not create the database file")
	}
}

func TestNewReadOnlyNotAnIndex(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "empty.db")
	if err := os.WriteFile(dbPath, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := New(context.Background(), dbPath, &Options{ReadOnly: true})
	if !errors.Is(err, catalog.ErrIndexNotFound) {
		t.Fatalf("err = %v, want ErrIndexNotFound", err)
	}
}

func TestReadOnlyQueries(t *testing.T) {
	t.Parallel()

	db, dbPath := setupTestDB(t)
	emit(t, db, songRecord(t, "g1"))

	ro, err := New(context.Background(), dbPath, &Options{ReadOnly: true})
	if err != nil {
		t.Fatalf("read-only open: %v", err)
	}
	defer ro.Close()

	res, err := ro.Search(context.Background(), SearchOptions{Query: "artist:Adele"})
	if err != nil || !res.Found {
		t.Fatalf("Search = %+v, %v", res, err)
	}
	if err := ro.Emit(context.Background(), songRecord(t, "g2"), nil); err == nil {
		t.Error("read-only database accepted a write")
	}
}

func TestSearchFields(t *testing.T) {
	t.Parallel()

	db, _ := setupTestDB(t)
	emit(t, db, songRecord(t, "g1"))
	emit(t, db, movieRecord(t, "g1"))
	ctx := context.Background()

	tests := []struct {
		query  string
		found  bool
		source catalog.SourceType
	}{
		{"artist:Adele", true, catalog.SourceTag},
		{"ARTIST:adele", true, catalog.SourceTag},
		{"Artist:Adele", true, catalog.SourceTag},
		{"Width:1920", true, catalog.SourceFFprobe},
		{`artist:"Adele"`, true, catalog.SourceTag},
		{"width:1920", true, catalog.SourceFFprobe},
		{"artist:NonexistentName", false, ""},
		{"composer:Adele", false, ""},
	}
	for _, tt := range tests {
		res, err := db.Search(ctx, SearchOptions{Query: tt.query})
		if err != nil {
			t.Fatalf("Search(%q): %v", tt.query, err)
		}
		if res.Mode != ModeFields {
			t.Errorf("Search(%q) mode = %s", tt.query, res.Mode)
		}
		if res.Found != tt.found {
			t.Errorf("Search(%q) found = %v, want %v", tt.query, res.Found, tt.found)
			continue
		}
		if !tt.found {
			if len(res.Hits) != 0 || res.Reason == "" {
				t.Errorf("Search(%q) not-found result = %+v", tt.query, res)
			}
			continue
		}
		if len(res.Hits) != 1 || res.Hits[0].SourceType != tt.source {
			t.Errorf("Search(%q) hits = %+v", tt.query, res.Hits)
		}
	}

	res, _ := db.Search(ctx, SearchOptions{Query: "artist:Adele"})
	if hit := res.Hits[0]; hit.Path != "/media/music/hello.mp3" || hit.Value != "Adele" || hit.Key != "artist" {
		t.Errorf("hit = %+v", hit)
	}

	res, err := db.Search(ctx, SearchOptions{Query: "artist:Adele", SourceType: catalog.SourceFFprobe})
	if err != nil || res.Found {
		t.Errorf("source filter ignored: %+v, %v", res, err)
	}
	if _, err := db.Search(ctx, SearchOptions{Query: "x", SourceType: "telepathy"}); !errors.Is(err, catalog.ErrConfiguration) {
		t.Errorf("unknown source type err = %v", err)
	}
}

func TestSearchText(t *testing.T) {
	t.Parallel()

	db, _ := setupTestDB(t)
	emit(t, db, movieRecord(t, "g1"))
	ctx := context.Background()

	res, err := db.Search(ctx, SearchOptions{Query: "kenobi"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Mode != ModeText || !res.Found {
		t.Fatalf("result = %+v", res)
	}
	var subtitle *Hit
	for i := range res.Hits {
		if res.Hits[i].SourceType == catalog.SourceSubtitleText && res.Hits[i].Kind == catalog.UnitText {
			subtitle = &res.Hits[i]
		}
	}
	if subtitle == nil {
		t.Fatalf("no subtitle text hit in %+v", res.Hits)
	}
	if subtitle.Path != "/media/films/movie.srt" || subtitle.PrimaryPath != "/media/films/movie.mp4" {
		t.Errorf("hit provenance = %+v", subtitle)
	}
	if subtitle.ChunkIndex == nil || *subtitle.ChunkIndex != 0 {
		t.Errorf("chunk index = %v", subtitle.ChunkIndex)
	}

	short, err := db.Search(ctx, SearchOptions{Query: "Ar", SourceType: catalog.SourceMetaText})
	if err != nil || !short.Found {
		t.Fatalf("short query = %+v, %v", short, err)
	}

	none, err := db.Search(ctx, SearchOptions{Query: "Obi-Wan"})
	if err != nil || none.Found || len(none.Hits) != 0 {
		t.Errorf("unmatched text query = %+v, %v", none, err)
	}
}

func TestEmitReplacesRecord(t *testing.T) {
	t.Parallel()

	db, _ := setupTestDB(t)
	ctx := context.Background()

	first := emit(t, db, movieRecord(t, "g1"))
	emit(t, db, movieRecord(t, "g2"))

	rec, err := db.GetRecord(ctx, "/media/films/movie.mp4")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if len(rec.Units) != len(first) {
		t.Errorf("stored %d units after re-emit, want %d", len(rec.Units), len(first))
	}
	if rec.Generation != "g2" {
		t.Errorf("generation = %q, want g2", rec.Generation)
	}
	if len(rec.Sidecars) != 2 || rec.Sidecars[0].Category != string(mediatypes.CategoryMeta) {
		t.Errorf("sidecars = %+v", rec.Sidecars)
	}
	for _, u := range rec.Units {
		if u.PrimaryPath != rec.Path || u.SourceType == "" || u.Path == "" {
			t.Errorf("unit lost provenance: %+v", u)
		}
	}
	if rec.Units[0].Kind != catalog.UnitFields || len(rec.Units[0].Fields) != 1 || rec.Units[0].Fields[0].Value != "1920" {
		t.Errorf("fields unit = %+v", rec.Units[0])
	}

	res, _ := db.Search(ctx, SearchOptions{Query: "width:1920"})
	if res.Total != 1 {
		t.Errorf("width:1920 matched %d fields, want 1", res.Total)
	}
}

func TestEmitRejectsForeignUnits(t *testing.T) {
	t.Parallel()

	db, _ := setupTestDB(t)
	rec := songRecord(t, "g1")
	units := []catalog.CorpusUnit{{Text: "x", Path: "/other", PrimaryPath: "/other", SourceType: catalog.SourceTag, Kind: catalog.UnitText}}
	if err := db.Emit(context.Background(), rec, units); !errors.Is(err, catalog.ErrInvariant) {
		t.Fatalf("err = %v, want InvariantViolation", err)
	}
}

func TestEmitReplacesClaimedOrphan(t *testing.T) {
	t.Parallel()

	db, _ := setupTestDB(t)
	ctx := context.Background()

	srt := fileRecord(t, "/media/films/movie.srt", 120)
	orphan := catalog.NewAssembledRecord(srt, nil, []catalog.Fact{
		catalog.NewFact(catalog.SourceSubtitleText, srt.Path, catalog.KeyText, "Hello there"),
	}, nil, false, "g1")
	emit(t, db, orphan)
	emit(t, db, movieRecord(t, "g1"))

	rec, err := db.GetRecord(ctx, srt.Path)
	if err != nil {
		t.Fatalf("GetRecord(sidecar): %v", err)
	}
	if rec.Path != "/media/films/movie.mp4" {
		t.Errorf("sidecar resolved to %s", rec.Path)
	}

	stats, err := db.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.TotalRecords != 1 {
		t.Errorf("records = %d, want the orphan replaced", stats.TotalRecords)
	}
}

func TestGetRecordNotFound(t *testing.T) {
	t.Parallel()

	db, _ := setupTestDB(t)
	if _, err := db.GetRecord(context.Background(), "/nope"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("err = %v, want ErrRecordNotFound", err)
	}
}

func TestRefreshAndRetire(t *testing.T) {
	t.Parallel()

	db, _ := setupTestDB(t)
	ctx := context.Background()

	song := songRecord(t, "g1")
	movie := movieRecord(t, "g1")
	emit(t, db, song)
	emit(t, db, movie)

	ok, err := db.Refresh(ctx, song.Primary().Path, song.Fingerprint(), "g2")
	if err != nil || !ok {
		t.Fatalf("Refresh(unchanged) = %v, %v", ok, err)
	}
	ok, err = db.Refresh(ctx, movie.Primary().Path, "stale", "g2")
	if err != nil || ok {
		t.Fatalf("Refresh(changed) = %v, %v", ok, err)
	}
	ok, err = db.Refresh(ctx, "/media/never-indexed.mp4", "", "g2")
	if err != nil || ok {
		t.Fatalf("Refresh(unknown) = %v, %v", ok, err)
	}

	retired, err := db.RetireGeneration(ctx, "g2")
	if err != nil {
		t.Fatalf("RetireGeneration: %v", err)
	}
	if retired != 1 {
		t.Errorf("retired %d records, want 1", retired)
	}

	if _, err := db.GetRecord(ctx, movie.Primary().Path); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("retired record still present: %v", err)
	}
	rec, err := db.GetRecord(ctx, song.Primary().Path)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	for _, u := range rec.Units {
		if u.Generation != "g2" {
			t.Errorf("unit generation = %q, want g2", u.Generation)
		}
	}
	res, _ := db.Search(ctx, SearchOptions{Query: "kenobi"})
	if res.Found {
		t.Error("text of a retired record is still searchable")
	}
}

func TestDeleteRecord(t *testing.T) {
	t.Parallel()

	db, _ := setupTestDB(t)
	ctx := context.Background()
	emit(t, db, songRecord(t, "g1"))

	if err := db.DeleteRecord(ctx, "/media/music/hello.mp3"); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	res, err := db.Search(ctx, SearchOptions{Query: "artist:Adele"})
	if err != nil || res.Found {
		t.Errorf("deleted record still matches: %+v, %v", res, err)
	}
}

func TestScans(t *testing.T) {
	t.Parallel()

	db, _ := setupTestDB(t)
	ctx := context.Background()

	if last, err := db.LastScan(ctx); err != nil || last != nil {
		t.Fatalf("LastScan on empty index = %+v, %v", last, err)
	}
	if gen, err := db.LastCompletedScan(ctx); err != nil || gen != "" {
		t.Fatalf("LastCompletedScan = %q, %v", gen, err)
	}

	started := time.Now().Add(-time.Minute)
	if err := db.BeginScan(ctx, "g1", "/media", started); err != nil {
		t.Fatalf("BeginScan: %v", err)
	}
	last, err := db.LastScan(ctx)
	if err != nil || last == nil || last.Status != ScanRunning || last.FinishedAt != nil {
		t.Fatalf("running scan = %+v, %v", last, err)
	}

	err = db.FinishScan(ctx, ScanInfo{
		Generation:   "g1",
		Status:       ScanCompleted,
		Files:        10,
		Records:      7,
		Units:        21,
		Retired:      2,
		DroppedFacts: 1,
		Errors:       map[string]int{"ProducerError": 3, "UnsupportedFormat": 1},
	})
	if err != nil {
		t.Fatalf("FinishScan: %v", err)
	}

	last, err = db.LastScan(ctx)
	if err != nil {
		t.Fatalf("LastScan: %v", err)
	}
	if last.Status != ScanCompleted || last.Files != 10 || last.Records != 7 || last.Retired != 2 || last.DroppedFacts != 1 {
		t.Errorf("scan = %+v", last)
	}
	if last.Errors["ProducerError"] != 3 || last.Errors["UnsupportedFormat"] != 1 {
		t.Errorf("errors = %v", last.Errors)
	}
	if last.FinishedAt == nil || last.RootPath != "/media" {
		t.Errorf("scan = %+v", last)
	}
	if gen, _ := db.LastCompletedScan(ctx); gen != "g1" {
		t.Errorf("LastCompletedScan = %q", gen)
	}
}

func TestMetadata(t *testing.T) {
	t.Parallel()

	db, _ := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.GetMetadata(ctx, "nonexistent"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("missing key err = %v, want sql.ErrNoRows", err)
	}
	if v, err := db.GetMetadata(ctx, metaSchemaVersion); err != nil || v != schemaVersion {
		t.Errorf("schema version = %q, %v", v, err)
	}
	for _, v := range []string{"value1", "value2"} {
		if err := db.SetMetadata(ctx, "key1", v); err != nil {
			t.Fatalf("SetMetadata: %v", err)
		}
	}
	if v, _ := db.GetMetadata(ctx, "key1"); v != "value2" {
		t.Errorf("key1 = %q, want value2", v)
	}
}

func TestGetStats(t *testing.T) {
	t.Parallel()

	db, dbPath := setupTestDB(t)
	emit(t, db, songRecord(t, "g1"))
	emit(t, db, movieRecord(t, "g1"))

	stats, err := db.GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.TotalRecords != 2 || stats.RecordsByCategory["audio"] != 1 || stats.RecordsByCategory["video"] != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.TotalUnits == 0 {
		t.Error("no units counted")
	}
	if stats.DBFileSizes["main"] == 0 {
		t.Errorf("main file size missing for %s: %v", dbPath, stats.DBFileSizes)
	}
}

func TestParseQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in         string
		key, value string
		ok         bool
	}{
		{"artist:Adele", "artist", "Adele", true},
		{"  title: Hello World ", "title", "Hello World", true},
		{`album:"25"`, "album", "25", true},
		{"artist:", "", "", false},
		{"General Kenobi", "", "", false},
		{"12:30", "", "", false},
	}
	for _, tt := range tests {
		key, value, ok := ParseQuery(tt.in)
		if key != tt.key || value != tt.value || ok != tt.ok {
			t.Errorf("ParseQuery(%q) = %q, %q, %v", tt.in, key, value, ok)
		}
	}
}
