package catalog

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"media-catalog/internal/mediatypes"
)

// AssembledRecord is a primary file, its sidecars and every fact gathered
// about them. It is immutable: accessors return copies.
type AssembledRecord struct {
	primary    FileRecord
	sidecars   []FileRecord
	facts      []Fact
	listing    *ArchiveListing
	ambiguous  bool
	generation string
}

// NewAssembledRecord copies its inputs into a new record.
func NewAssembledRecord(primary FileRecord, sidecars []FileRecord, facts []Fact, listing *ArchiveListing, ambiguous bool, generation string) *AssembledRecord {
	return &AssembledRecord{
		primary:    primary,
		sidecars:   append([]FileRecord(nil), sidecars...),
		facts:      append([]Fact(nil), facts...),
		listing:    listing.Clone(),
		ambiguous:  ambiguous,
		generation: generation,
	}
}

func (r *AssembledRecord) Primary() FileRecord { return r.primary }

func (r *AssembledRecord) Sidecars() []FileRecord {
	return append([]FileRecord(nil), r.sidecars...)
}

// SidecarsByCategory returns the linked sidecars of one category, in path order.
func (r *AssembledRecord) SidecarsByCategory(cat mediatypes.Category) []FileRecord {
	var out []FileRecord
	for _, s := range r.sidecars {
		if s.Category == cat {
			out = append(out, s)
		}
	}
	return out
}

func (r *AssembledRecord) Facts() []Fact {
	return append([]Fact(nil), r.facts...)
}

// FactsFor returns facts with the given key, across all sources.
func (r *AssembledRecord) FactsFor(key string) []Fact {
	var out []Fact
	for _, f := range r.facts {
		if f.Key == key {
			out = append(out, f)
		}
	}
	return out
}

// FactsBySource returns facts from one source type.
func (r *AssembledRecord) FactsBySource(source SourceType) []Fact {
	var out []Fact
	for _, f := range r.facts {
		if f.Source == source {
			out = append(out, f)
		}
	}
	return out
}

// Listing returns a copy of the archive listing, or nil.
func (r *AssembledRecord) Listing() *ArchiveListing { return r.listing.Clone() }

// AmbiguousSidecar is set when a category has more than one linked sidecar.
func (r *AssembledRecord) AmbiguousSidecar() bool { return r.ambiguous }

func (r *AssembledRecord) Generation() string { return r.generation }

// Paths returns the primary path followed by sidecar paths.
func (r *AssembledRecord) Paths() []string {
	out := make([]string, 0, 1+len(r.sidecars))
	out = append(out, r.primary.Path)
	for _, s := range r.sidecars {
		out = append(out, s.Path)
	}
	return out
}

// HasPath reports whether path is the primary or a linked sidecar.
func (r *AssembledRecord) HasPath(path string) bool {
	if path == r.primary.Path {
		return true
	}
	for _, s := range r.sidecars {
		if s.Path == path {
			return true
		}
	}
	return false
}

// Fingerprint identifies the on-disk state of the record's files.
func (r *AssembledRecord) Fingerprint() string {
	return Fingerprint(r.primary, r.sidecars)
}

// Fingerprint hashes path, size and modification time of a primary and its
// sidecars. Any change to one of them changes the result.
func Fingerprint(primary FileRecord, sidecars []FileRecord) string {
	files := append([]FileRecord(nil), sidecars...)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	files = append([]FileRecord{primary}, files...)

	h := md5.New()
	for _, f := range files {
		fmt.Fprintf(h, "%s\x00%d\x00%d\n", f.Path, f.SizeBytes, f.ModifiedTime.UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil))
}

type assembledRecordJSON struct {
	Primary          FileRecord      `json:"primary"`
	Sidecars         []FileRecord    `json:"sidecars,omitempty"`
	Facts            []Fact          `json:"facts"`
	Listing          *ArchiveListing `json:"archive_listing,omitempty"`
	AmbiguousSidecar bool            `json:"ambiguous_sidecar,omitempty"`
	Generation       string          `json:"generation,omitempty"`
}

func (r *AssembledRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(assembledRecordJSON{
		Primary:          r.primary,
		Sidecars:         r.sidecars,
		Facts:            r.facts,
		Listing:          r.listing,
		AmbiguousSidecar: r.ambiguous,
		Generation:       r.generation,
	})
}
