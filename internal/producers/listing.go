package producers

import (
	"context"
	"strconv"

	"media-catalog/internal/archive"
	"media-catalog/internal/catalog"
)

// ArchiveListing turns an archive's bounded header walk into facts.
type ArchiveListing struct {
	Inspector *archive.Inspector
}

// NewArchiveListing wraps in.
func NewArchiveListing(in *archive.Inspector) *ArchiveListing {
	return &ArchiveListing{Inspector: in}
}

func (a *ArchiveListing) Name() string               { return "archive_listing" }
func (a *ArchiveListing) Source() catalog.SourceType { return catalog.SourceArchiveListing }

func (a *ArchiveListing) Produce(ctx context.Context, rec catalog.FileRecord) ([]catalog.Fact, error) {
	_, facts, err := a.ProduceListing(ctx, rec)
	return facts, err
}

// ProduceListing lists rec and flattens the result. A failed listing still
// yields a listing_error fact, plus whatever entries were read before a cap.
func (a *ArchiveListing) ProduceListing(ctx context.Context, rec catalog.FileRecord) (*catalog.ArchiveListing, []catalog.Fact, error) {
	listing, err := a.Inspector.List(ctx, rec.Path)

	var facts []catalog.Fact
	add := func(key string, value interface{}) {
		facts = append(facts, catalog.NewFact(catalog.SourceArchiveListing, rec.Path, key, value))
	}

	if listing != nil {
		facts = append(facts, listingFacts(rec.Path, listing)...)
	}
	if err != nil {
		add(catalog.KeyListingError, string(catalog.KindOf(err)))
	}
	return listing, facts, err
}

func listingFacts(origin string, l *catalog.ArchiveListing) []catalog.Fact {
	facts := make([]catalog.Fact, 0, len(l.Entries)+8)
	add := func(key string, value interface{}) {
		facts = append(facts, catalog.NewFact(catalog.SourceArchiveListing, origin, key, value))
	}

	if l.Format != "" {
		add("format", l.Format)
	}
	add("entry_count", strconv.Itoa(len(l.Entries)))
	add("declared_total_size", strconv.FormatInt(l.DeclaredTotal, 10))
	if l.Truncated {
		add(catalog.KeyTruncated, "true")
	}
	if l.DroppedTraversal > 0 {
		add("dropped_traversal", strconv.Itoa(l.DroppedTraversal))
	}

	var suspicious, nested, limited int
	for _, e := range l.Entries {
		name := e.InternalPath
		if e.IsDirectory {
			name += "/"
		}
		add(catalog.KeyEntry, name)
		if e.SuspiciousSize {
			suspicious++
		}
		if e.NestedArchive {
			nested++
		}
		if e.DepthLimited {
			limited++
		}
	}
	if suspicious > 0 {
		add("suspicious_size", strconv.Itoa(suspicious))
	}
	if nested > 0 {
		add("nested_archive", strconv.Itoa(nested))
	}
	if limited > 0 {
		add("depth_limited", strconv.Itoa(limited))
	}
	return facts
}
