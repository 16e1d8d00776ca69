package catalog

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"media-catalog/internal/mediatypes"
)

// SourceType names the kind of producer a fact came from.
type SourceType string

const (
	SourceFFprobe        SourceType = "ffprobe"
	SourceExif           SourceType = "exif"
	SourceTag            SourceType = "tag"
	SourceSubtitleText   SourceType = "subtitle_text"
	SourceNoteText       SourceType = "note_text"
	SourceMetaText       SourceType = "meta_text"
	SourceArchiveListing SourceType = "archive_listing"
	SourceFilename       SourceType = "filename"
)

// AllSourceTypes lists every source type.
var AllSourceTypes = []SourceType{
	SourceFFprobe,
	SourceExif,
	SourceTag,
	SourceSubtitleText,
	SourceNoteText,
	SourceMetaText,
	SourceArchiveListing,
	SourceFilename,
}

// Valid reports whether s is a known source type.
func (s SourceType) Valid() bool {
	for _, st := range AllSourceTypes {
		if s == st {
			return true
		}
	}
	return false
}

// IsText reports whether s carries sidecar text blocks.
func (s SourceType) IsText() bool {
	return s == SourceSubtitleText || s == SourceNoteText || s == SourceMetaText
}

// TextSourceFor returns the text source type for a sidecar category.
func TextSourceFor(cat mediatypes.Category) (SourceType, bool) {
	switch cat {
	case mediatypes.CategorySubtitle:
		return SourceSubtitleText, true
	case mediatypes.CategoryNote:
		return SourceNoteText, true
	case mediatypes.CategoryMeta:
		return SourceMetaText, true
	default:
		return "", false
	}
}

// Well-known fact keys.
const (
	KeyText             = "text"
	KeyEntry            = "entry"
	KeyDecodingFallback = "decoding_fallback"
	KeyTruncated        = "truncated"
	KeyListingError     = "listing_error"
	KeyProducerError    = "producer_error"
)

// FileEvent is one path reported by a walker or watcher.
type FileEvent struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// FileRecord describes one physical file.
type FileRecord struct {
	Path         string              `json:"path"`
	Name         string              `json:"name"`
	Extension    string              `json:"extension"`
	SizeBytes    int64               `json:"size_bytes"`
	ModifiedTime time.Time           `json:"modified_time"`
	Category     mediatypes.Category `json:"category"`
}

// NewFileRecord canonicalizes path and classifies it with table.
func NewFileRecord(path string, size int64, modTime time.Time, table *mediatypes.Table) (FileRecord, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return FileRecord{}, NewError(KindIO, "resolve path", path, err)
	}
	abs = filepath.Clean(abs)
	name := filepath.Base(abs)
	ext := mediatypes.Extension(name)
	return FileRecord{
		Path:         abs,
		Name:         name,
		Extension:    ext,
		SizeBytes:    size,
		ModifiedTime: modTime.UTC(),
		Category:     table.Category(ext),
	}, nil
}

// RecordFromEvent builds a FileRecord from a walker event.
func RecordFromEvent(ev FileEvent, table *mediatypes.Table) (FileRecord, error) {
	return NewFileRecord(ev.Path, ev.Size, ev.ModTime, table)
}

// Dir returns the directory containing the file.
func (r FileRecord) Dir() string {
	return filepath.Dir(r.Path)
}

// BaseKey returns the lowercased path minus its extension, used to pair
// sidecars with their primary.
func (r FileRecord) BaseKey() string {
	return strings.ToLower(filepath.Join(r.Dir(), r.Stem()))
}

// Stem returns the file name without its extension.
func (r FileRecord) Stem() string {
	if r.Extension != "" && strings.HasSuffix(strings.ToLower(r.Name), r.Extension) {
		return r.Name[:len(r.Name)-len(r.Extension)]
	}
	return strings.TrimSuffix(r.Name, filepath.Ext(r.Name))
}

// Fact is one atomic piece of extracted information.
type Fact struct {
	Key    string     `json:"key"`
	Value  string     `json:"value"`
	Source SourceType `json:"source_type"`
	Origin string     `json:"origin"`
}

// NewFact is shorthand for a Fact literal.
func NewFact(source SourceType, origin, key string, value interface{}) Fact {
	return Fact{Key: key, Value: fmt.Sprint(value), Source: source, Origin: origin}
}

// Validate checks the provenance fields every fact must carry.
func (f Fact) Validate() error {
	switch {
	case f.Source == "":
		return Errorf(KindInvariant, "validate fact", f.Origin, "fact %q has no source_type", f.Key)
	case f.Key == "":
		return Errorf(KindInvariant, "validate fact", f.Origin, "fact from %s has no key", f.Source)
	case f.Origin == "":
		return Errorf(KindInvariant, "validate fact", "", "fact %q from %s has no origin", f.Key, f.Source)
	}
	return nil
}

// IsBlock reports whether the fact is rendered as a text passage rather
// than a structured field.
func (f Fact) IsBlock() bool {
	if f.Source.IsText() && f.Key == KeyText {
		return true
	}
	return f.Source == SourceArchiveListing && f.Key == KeyEntry
}

// ArchiveEntry is one listed member of an archive.
type ArchiveEntry struct {
	ArchivePath    string `json:"archive_path"`
	InternalPath   string `json:"internal_path"`
	EntrySize      int64  `json:"entry_size"`
	IsDirectory    bool   `json:"is_directory"`
	SuspiciousSize bool   `json:"suspicious_size,omitempty"`
	NestedArchive  bool   `json:"nested_archive,omitempty"`
	NestingDepth   int    `json:"nesting_depth,omitempty"`
	DepthLimited   bool   `json:"depth_limited,omitempty"`
}

// ArchiveListing is the bounded result of listing one archive.
type ArchiveListing struct {
	ArchivePath      string         `json:"archive_path"`
	Format           string         `json:"format"`
	Entries          []ArchiveEntry `json:"entries"`
	DeclaredTotal    int64          `json:"declared_total"`
	Truncated        bool           `json:"truncated"`
	DroppedTraversal int            `json:"dropped_traversal"`
	Warnings         []string       `json:"warnings,omitempty"`
}

// Clone returns a deep copy of l.
func (l *ArchiveListing) Clone() *ArchiveListing {
	if l == nil {
		return nil
	}
	c := *l
	c.Entries = append([]ArchiveEntry(nil), l.Entries...)
	c.Warnings = append([]string(nil), l.Warnings...)
	return &c
}

// UnitKind distinguishes structured and passage units.
type UnitKind string

const (
	UnitFields UnitKind = "fields"
	UnitText   UnitKind = "text"
)

// Field is one key/value pair of a fields unit. Repeated keys are allowed.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// CorpusUnit is one retrievable passage with provenance.
type CorpusUnit struct {
	Text        string     `json:"text"`
	Path        string     `json:"path"`
	PrimaryPath string     `json:"primary_path"`
	SourceType  SourceType `json:"source_type"`
	Kind        UnitKind   `json:"kind"`
	ChunkIndex  *int       `json:"chunk_index,omitempty"`
	Fields      []Field    `json:"fields,omitempty"`
	Generation  string     `json:"generation,omitempty"`
}
