package corpus

import (
	"fmt"
	"path/filepath"
	"strings"

	"media-catalog/internal/catalog"
)

const (
	// DefaultChunkSize is the chunk length in runes.
	DefaultChunkSize = 512
	// DefaultChunkOverlap is the number of runes repeated between chunks.
	DefaultChunkOverlap = 50
)

// Builder turns assembled records into corpus units.
type Builder struct {
	chunkSize    int
	chunkOverlap int
}

// NewBuilder validates the chunking policy.
func NewBuilder(chunkSize, chunkOverlap int) (*Builder, error) {
	if chunkSize <= 0 || chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, catalog.Errorf(catalog.KindConfiguration, "new corpus builder", "",
			"chunk_size %d and chunk_overlap %d: need 0 <= overlap < size", chunkSize, chunkOverlap)
	}
	return &Builder{chunkSize: chunkSize, chunkOverlap: chunkOverlap}, nil
}

type groupKey struct {
	origin string
	source catalog.SourceType
}

// Build converts rec into units. Structured facts become one fields unit per
// (file, source type); sidecar text and archive listings become chunked text
// units. Every unit is checked for provenance and a violation aborts the call.
func (b *Builder) Build(rec *catalog.AssembledRecord) ([]catalog.CorpusUnit, error) {
	primary := rec.Primary()
	generation := rec.Generation()

	var (
		order  []groupKey
		fields = make(map[groupKey][]catalog.Field)
		texts  []catalog.Fact
		blocks = make(map[string][]string)
		listed []string
	)
	for _, f := range rec.Facts() {
		switch {
		case f.Source == catalog.SourceArchiveListing && f.Key == catalog.KeyEntry:
			if _, ok := blocks[f.Origin]; !ok {
				listed = append(listed, f.Origin)
			}
			blocks[f.Origin] = append(blocks[f.Origin], f.Value)
		case f.IsBlock():
			texts = append(texts, f)
		default:
			k := groupKey{origin: f.Origin, source: f.Source}
			if _, ok := fields[k]; !ok {
				order = append(order, k)
			}
			fields[k] = append(fields[k], catalog.Field{Key: f.Key, Value: f.Value})
		}
	}

	var units []catalog.CorpusUnit
	for _, k := range order {
		units = append(units, catalog.CorpusUnit{
			Text:        fieldsText(k.origin, k.source, fields[k]),
			Path:        k.origin,
			PrimaryPath: primary.Path,
			SourceType:  k.source,
			Kind:        catalog.UnitFields,
			Fields:      fields[k],
			Generation:  generation,
		})
	}

	for _, f := range texts {
		units = append(units, b.textUnits(f.Value, f.Origin, primary.Path, f.Source, generation)...)
	}
	for _, origin := range listed {
		body := strings.Join(blocks[origin], "\n")
		units = append(units, b.textUnits(body, origin, primary.Path, catalog.SourceArchiveListing, generation)...)
	}

	for i := range units {
		if err := validate(rec, units[i]); err != nil {
			return nil, err
		}
	}
	return units, nil
}

func (b *Builder) textUnits(text, origin, primary string, source catalog.SourceType, generation string) []catalog.CorpusUnit {
	chunks := Chunk(text, b.chunkSize, b.chunkOverlap)
	units := make([]catalog.CorpusUnit, 0, len(chunks))
	for i, c := range chunks {
		idx := i
		units = append(units, catalog.CorpusUnit{
			Text:        c,
			Path:        origin,
			PrimaryPath: primary,
			SourceType:  source,
			Kind:        catalog.UnitText,
			ChunkIndex:  &idx,
			Generation:  generation,
		})
	}
	return units
}

// fieldsText renders "[movie.mp4] ffprobe: width: 1920 | height: 1080".
func fieldsText(origin string, source catalog.SourceType, fields []catalog.Field) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f.Key + ": " + f.Value
	}
	return fmt.Sprintf("[%s] %s: %s", filepath.Base(origin), source, strings.Join(parts, " | "))
}

func validate(rec *catalog.AssembledRecord, u catalog.CorpusUnit) error {
	switch {
	case u.SourceType == "" || !u.SourceType.Valid():
		return catalog.Errorf(catalog.KindInvariant, "build corpus", u.Path, "unit has invalid source_type %q", u.SourceType)
	case u.Path == "" || !rec.HasPath(u.Path):
		return catalog.Errorf(catalog.KindInvariant, "build corpus", rec.Primary().Path,
			"unit path %q is not part of the record", u.Path)
	case u.PrimaryPath != rec.Primary().Path:
		return catalog.Errorf(catalog.KindInvariant, "build corpus", u.Path, "unit primary_path %q does not match", u.PrimaryPath)
	}
	return nil
}

// Chunk splits text into windows of at most size runes that overlap by
// overlap runes. A window that does not reach the end of the text is cut
// after the last newline in its second half, when there is one. Whitespace-only
// chunks are skipped.
func Chunk(text string, size, overlap int) []string {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= size {
		if s := strings.TrimSpace(text); s != "" {
			return []string{s}
		}
		return nil
	}

	var chunks []string
	for start := 0; start < n; {
		end := start + size
		if end > n {
			end = n
		}
		if end < n {
			for j := end - 1; j > start+size/2; j-- {
				if runes[j] == '\n' {
					end = j + 1
					break
				}
			}
		}
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			chunks = append(chunks, s)
		}
		if end >= n {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}
