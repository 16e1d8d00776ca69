package assembler

import (
	"sort"

	"media-catalog/internal/catalog"
	"media-catalog/internal/logging"
	"media-catalog/internal/mediatypes"
	"media-catalog/internal/metrics"
)

var log = logging.For("assembler")

// Linked is a primary file with the sidecars linked to it.
type Linked struct {
	Primary   catalog.FileRecord
	Sidecars  []catalog.FileRecord
	Ambiguous bool
}

// Group partitions the files of one directory into primaries and their
// sidecars. A sidecar (subtitle, note, meta) links to the non-sidecar file
// whose path minus extension matches case-insensitively. When several
// primaries share a base name the sidecars go to the first one by path.
// Unmatched sidecars become primaries of their own. Output is ordered by
// primary path and is independent of input order.
func Group(files []catalog.FileRecord) []Linked {
	type bucket struct {
		primaries []catalog.FileRecord
		sidecars  []catalog.FileRecord
	}
	buckets := make(map[string]*bucket)
	for _, f := range files {
		key := f.BaseKey()
		b := buckets[key]
		if b == nil {
			b = &bucket{}
			buckets[key] = b
		}
		if f.Category.IsSidecar() {
			b.sidecars = append(b.sidecars, f)
		} else {
			b.primaries = append(b.primaries, f)
		}
	}

	var groups []Linked
	for _, b := range buckets {
		sortByPath(b.primaries)
		sortByPath(b.sidecars)

		if len(b.primaries) == 0 {
			for _, s := range b.sidecars {
				groups = append(groups, Linked{Primary: s})
			}
			continue
		}

		for i, p := range b.primaries {
			g := Linked{Primary: p}
			if i == 0 && len(b.sidecars) > 0 {
				g.Sidecars = b.sidecars
				g.Ambiguous = ambiguous(b.sidecars)
			}
			groups = append(groups, g)
		}
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].Primary.Path < groups[j].Primary.Path })
	return groups
}

// Directory is the grouping of one directory's files, indexed by path so
// each file of the directory can find its group without regrouping.
type Directory struct {
	groups   []Linked
	primary  map[string]int
	claimant map[string]int
}

// NewDirectory groups files once.
func NewDirectory(files []catalog.FileRecord) *Directory {
	groups := Group(files)
	d := &Directory{
		groups:   groups,
		primary:  make(map[string]int, len(groups)),
		claimant: make(map[string]int),
	}
	for i, g := range groups {
		d.primary[g.Primary.Path] = i
		for _, s := range g.Sidecars {
			d.claimant[s.Path] = i
		}
	}
	return d
}

// Groups returns the groups ordered by primary path.
func (d *Directory) Groups() []Linked { return d.groups }

// Linked returns the group whose primary is path.
func (d *Directory) Linked(path string) (Linked, bool) {
	i, ok := d.primary[path]
	if !ok {
		return Linked{}, false
	}
	return d.groups[i], true
}

// ClaimedBy returns the primary that claims the sidecar at path, if any.
func (d *Directory) ClaimedBy(path string) (catalog.FileRecord, bool) {
	i, ok := d.claimant[path]
	if !ok {
		return catalog.FileRecord{}, false
	}
	return d.groups[i].Primary, true
}

// ClaimedBy returns the primary that claims sidecar within files, if any.
// Callers looking up many files of one directory should build a Directory.
func ClaimedBy(sidecar catalog.FileRecord, files []catalog.FileRecord) (catalog.FileRecord, bool) {
	if !sidecar.Category.IsSidecar() {
		return catalog.FileRecord{}, false
	}
	return NewDirectory(files).ClaimedBy(sidecar.Path)
}

func ambiguous(sidecars []catalog.FileRecord) bool {
	seen := make(map[mediatypes.Category]bool, len(sidecars))
	for _, s := range sidecars {
		if seen[s.Category] {
			return true
		}
		seen[s.Category] = true
	}
	return false
}

func sortByPath(records []catalog.FileRecord) {
	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })
}

// Sidecar carries one linked sidecar and the facts produced for it.
type Sidecar struct {
	Record catalog.FileRecord
	Facts  []catalog.Fact
}

type options struct {
	listing    *catalog.ArchiveListing
	generation string
	ambiguous  *bool
	summary    *catalog.Summary
}

// Option configures Assemble.
type Option func(*options)

// WithArchiveListing attaches the primary's archive listing.
func WithArchiveListing(l *catalog.ArchiveListing) Option {
	return func(o *options) { o.listing = l }
}

// WithGeneration stamps the record with a scan generation id.
func WithGeneration(id string) Option {
	return func(o *options) { o.generation = id }
}

// WithAmbiguous overrides the ambiguous_sidecar flag computed from the sidecars.
func WithAmbiguous(v bool) Option {
	return func(o *options) { o.ambiguous = &v }
}

// WithSummary counts rejected facts in s.
func WithSummary(s *catalog.Summary) Option {
	return func(o *options) { o.summary = s }
}

// Assemble merges the primary's facts and each sidecar's facts into one
// immutable record. Facts are concatenated, never overwritten: the primary's
// come first in the order given, then each sidecar's in path order. Facts
// without provenance, or whose origin is not one of the record's files, are
// dropped, logged and counted.
func Assemble(primary catalog.FileRecord, facts []catalog.Fact, sidecars []Sidecar, opts ...Option) *catalog.AssembledRecord {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	ordered := append([]Sidecar(nil), sidecars...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Record.Path < ordered[j].Record.Path })

	files := make(map[string]bool, len(ordered)+1)
	files[primary.Path] = true
	records := make([]catalog.FileRecord, 0, len(ordered))
	for _, s := range ordered {
		files[s.Record.Path] = true
		records = append(records, s.Record)
	}

	merged := make([]catalog.Fact, 0, len(facts))
	dropped := 0
	keep := func(f catalog.Fact) {
		if err := f.Validate(); err != nil {
			log.Warn("Dropping fact for %s: %v", primary.Path, err)
			dropped++
			return
		}
		if !files[f.Origin] {
			log.Warn("Dropping %s fact %q for %s: origin %s is not part of the record", f.Source, f.Key, primary.Path, f.Origin)
			dropped++
			return
		}
		merged = append(merged, f)
	}
	for _, f := range facts {
		keep(f)
	}
	for _, s := range ordered {
		for _, f := range s.Facts {
			keep(f)
		}
	}
	if dropped > 0 {
		metrics.IndexerDroppedFacts.Add(float64(dropped))
		if o.summary != nil {
			o.summary.AddDroppedFacts(dropped)
		}
	}

	amb := ambiguous(records)
	if o.ambiguous != nil {
		amb = *o.ambiguous
	}

	return catalog.NewAssembledRecord(primary, records, merged, o.listing, amb, o.generation)
}
