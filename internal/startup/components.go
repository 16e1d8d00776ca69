package startup

import (
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"media-catalog/internal/archive"
	"media-catalog/internal/catalog"
	"media-catalog/internal/corpus"
	"media-catalog/internal/indexer"
	"media-catalog/internal/logging"
	"media-catalog/internal/mediatypes"
	"media-catalog/internal/memory"
	"media-catalog/internal/producers"
)

// Table returns the category table with extension_category_map applied.
// Overrides naming an unknown category are logged and ignored.
func (c *Config) Table() *mediatypes.Table {
	table, rejected := mediatypes.NewTable(c.ExtensionCategoryMap)
	for _, ext := range rejected {
		logging.Warn("Ignoring extension_category_map entry %q: unknown category %q", ext, c.ExtensionCategoryMap[ext])
	}
	return table
}

// nameEncoding is the legacy encoding used for zip entry names, nil for UTF-8.
func (c *Config) nameEncoding() (encoding.Encoding, error) {
	name := strings.ToLower(strings.TrimSpace(c.TextEncoding))
	if name == "" || name == "utf-8" || name == "utf8" {
		return nil, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, catalog.Errorf(catalog.KindConfiguration, "text encoding", "", "unknown text_encoding %q", c.TextEncoding)
	}
	return enc, nil
}

// NewPipeline builds the producer registry, archive inspector and corpus
// builder described by c and wires them to sink.
func (c *Config) NewPipeline(sink indexer.Sink) (*indexer.Pipeline, error) {
	table := c.Table()

	names, err := c.nameEncoding()
	if err != nil {
		return nil, err
	}
	insp, err := archive.NewInspector(archive.Config{
		Limits: archive.Limits{
			MaxEntries:      c.ArchiveMaxEntries,
			MaxTotalSize:    c.ArchiveMaxTotalSize,
			MaxEntrySize:    c.ArchiveMaxEntrySize,
			MaxNestingDepth: c.ArchiveMaxNestingDepth,
		},
		AllowedRoot:  c.AllowedRoot,
		Timeout:      c.ProducerTimeout(),
		Table:        table,
		NameEncoding: names,
	})
	if err != nil {
		return nil, err
	}

	registry, err := producers.DefaultRegistry(producers.Options{
		FFprobePath: c.FFprobePath,
		Inspector:   insp,
		Text: producers.SidecarTextConfig{
			TextMaxBytes:     c.TextExtractMaxBytes,
			SubtitleMaxBytes: c.SubtitleMaxBytes,
			Encoding:         c.TextEncoding,
		},
	})
	if err != nil {
		return nil, err
	}

	builder, err := corpus.NewBuilder(c.ChunkSize, c.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	return indexer.NewPipeline(indexer.PipelineConfig{
		Table:        table,
		Registry:     registry,
		Runner:       producers.NewRunner(c.ProducerTimeout()),
		Builder:      builder,
		Sink:         sink,
		AllowedRoot:  c.AllowedRoot,
		IndexUnknown: c.IndexUnknown,
		SkipHidden:   c.SkipHidden,
	})
}

// IndexerConfig returns the scan settings of c. monitor may be nil.
func (c *Config) IndexerConfig(monitor *memory.Monitor) indexer.Config {
	walker := indexer.DefaultParallelWalkerConfig()
	walker.SkipHidden = c.SkipHidden
	return indexer.Config{
		Root:          c.RootPath,
		Workers:       c.Workers,
		Walker:        walker,
		IndexInterval: c.IndexInterval,
		PollInterval:  c.PollInterval,
		Memory:        monitor,
	}
}
