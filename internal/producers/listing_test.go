package producers

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"media-catalog/internal/archive"
	"media-catalog/internal/catalog"
)

func zipBytes(t *testing.T, names []string, declared uint64) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		if declared > 0 {
			if _, err := zw.CreateRaw(&zip.FileHeader{Name: name, Method: zip.Deflate, UncompressedSize64: declared}); err != nil {
				t.Fatal(err)
			}
			continue
		}
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if strings.HasSuffix(name, "/") {
			continue
		}
		if _, err := w.Write([]byte("payload")); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newListing(t *testing.T, root string, limits archive.Limits) *ArchiveListing {
	t.Helper()
	in, err := archive.NewInspector(archive.Config{Limits: limits, AllowedRoot: root})
	if err != nil {
		t.Fatal(err)
	}
	return NewArchiveListing(in)
}

func TestArchiveListingFacts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rec := writeFile(t, dir, "backup.zip", zipBytes(t, []string{"photos/", "photos/a.jpg", "inner.tar.gz", "../escape.txt"}, 0))

	listing, facts, err := newListing(t, dir, archive.DefaultLimits()).ProduceListing(context.Background(), rec)
	if err != nil {
		t.Fatalf("ProduceListing: %v", err)
	}
	if listing == nil || len(listing.Entries) != 3 {
		t.Fatalf("listing = %+v, want 3 entries", listing)
	}

	entries := values(facts, catalog.KeyEntry)
	want := []string{"photos/", "photos/a.jpg", "inner.tar.gz"}
	if len(entries) != len(want) {
		t.Fatalf("entry facts = %v, want %v", entries, want)
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entry[%d] = %q, want %q", i, entries[i], want[i])
		}
	}

	checks := map[string]string{
		"format":              "zip",
		"entry_count":         "3",
		"declared_total_size": "14",
		"dropped_traversal":   "1",
		"nested_archive":      "1",
	}
	for key, w := range checks {
		if got := value(facts, key); got != w {
			t.Errorf("%s = %q, want %q", key, got, w)
		}
	}
	for _, key := range []string{catalog.KeyTruncated, catalog.KeyListingError, "suspicious_size", "depth_limited"} {
		if got := value(facts, key); got != "" {
			t.Errorf("%s = %q, want absent", key, got)
		}
	}
}

func TestArchiveListingBomb(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	names := []string{"a.bin", "b.bin", "c.bin", "d.bin"}
	rec := writeFile(t, dir, "bomb.zip", zipBytes(t, names, 1<<30))

	limits := archive.DefaultLimits()
	limits.MaxTotalSize = 2<<30 + 1
	limits.MaxEntrySize = 1 << 20

	listing, facts, err := newListing(t, dir, limits).ProduceListing(context.Background(), rec)
	if !errors.Is(err, catalog.ErrResourceLimit) {
		t.Fatalf("err = %v, want ResourceLimitExceeded", err)
	}
	if listing == nil || !listing.Truncated || len(listing.Entries) != 2 {
		t.Fatalf("listing = %+v, want 2 entries and truncated", listing)
	}
	if got := value(facts, catalog.KeyListingError); got != string(catalog.KindResourceLimit) {
		t.Errorf("listing_error = %q", got)
	}
	if got := value(facts, catalog.KeyTruncated); got != "true" {
		t.Errorf("truncated = %q, want true", got)
	}
	if got := value(facts, "suspicious_size"); got != "2" {
		t.Errorf("suspicious_size = %q, want 2", got)
	}
}

func TestArchiveListingUnsupported(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rec := writeFile(t, dir, "fake.zip", []byte("this is plain text"))

	out := NewRunner(0).RunAll(context.Background(), []Producer{newListing(t, dir, archive.DefaultLimits())}, rec)
	if !errors.Is(out.Err(), catalog.ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want UnsupportedFormat", out.Err())
	}
	if out.Listing != nil {
		t.Errorf("listing = %+v, want nil", out.Listing)
	}
	if got := value(out.Facts, catalog.KeyListingError); got != string(catalog.KindUnsupportedFormat) {
		t.Errorf("listing_error = %q", got)
	}
	if got := values(out.Facts, catalog.KeyProducerError); len(got) != 0 {
		t.Errorf("typed listing failures are not producer errors, got %v", got)
	}
}
