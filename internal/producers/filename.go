package producers

import (
	"context"
	"path/filepath"
	"strconv"
	"time"

	"media-catalog/internal/catalog"
	"media-catalog/internal/mediatypes"
)

// Filename reports what the filesystem already knows about a file.
type Filename struct{}

func (f *Filename) Name() string               { return "filename" }
func (f *Filename) Source() catalog.SourceType { return catalog.SourceFilename }

func (f *Filename) Produce(_ context.Context, rec catalog.FileRecord) ([]catalog.Fact, error) {
	fact := func(key string, value interface{}) catalog.Fact {
		return catalog.NewFact(catalog.SourceFilename, rec.Path, key, value)
	}

	facts := []catalog.Fact{
		fact("name", rec.Name),
		fact("stem", rec.Stem()),
	}
	if rec.Extension != "" {
		facts = append(facts, fact("extension", rec.Extension))
	}
	facts = append(facts,
		fact("folder", filepath.Base(rec.Dir())),
		fact("size_bytes", strconv.FormatInt(rec.SizeBytes, 10)),
		fact("modified_time", rec.ModifiedTime.UTC().Format(time.RFC3339)),
		fact("category", string(rec.Category)),
		fact("mime_type", mediatypes.GetMimeType(rec.Extension)),
	)
	return facts, nil
}
