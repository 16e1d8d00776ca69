package indexer

import (
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"

	"media-catalog/internal/assembler"
	"media-catalog/internal/catalog"
	"media-catalog/internal/filesystem"
	"media-catalog/internal/mediatypes"
	"media-catalog/internal/metrics"
)

const defaultDirCacheSize = 256

// dirCache holds classified directory listings for sidecar discovery during
// one pass. Each listing is grouped once when it is read.
type dirCache struct {
	cache      *lru.Cache[string, *dirListing]
	table      *mediatypes.Table
	retry      filesystem.RetryConfig
	skipHidden bool
}

func newDirCache(size int, table *mediatypes.Table, skipHidden bool) *dirCache {
	if size < 1 {
		size = defaultDirCacheSize
	}
	// lru.New only fails for a non-positive size.
	cache, _ := lru.New[string, *dirListing](size)
	return &dirCache{
		cache:      cache,
		table:      table,
		retry:      filesystem.DefaultRetryConfig(),
		skipHidden: skipHidden,
	}
}

type dirListing struct {
	files []catalog.FileRecord
	dir   *assembler.Directory
}

// Files returns the regular files of dir as FileRecords.
func (c *dirCache) Files(dir string) ([]catalog.FileRecord, error) {
	l, err := c.listing(dir)
	if err != nil {
		return nil, err
	}
	return l.files, nil
}

// Directory returns the grouped listing of dir. On error the result is an
// empty Directory, so lookups in it find nothing.
func (c *dirCache) Directory(dir string) (*assembler.Directory, error) {
	l, err := c.listing(dir)
	if err != nil {
		return assembler.NewDirectory(nil), err
	}
	return l.dir, nil
}

func (c *dirCache) listing(dir string) (*dirListing, error) {
	if l, ok := c.cache.Get(dir); ok {
		metrics.IndexerDirCacheHits.Inc()
		return l, nil
	}
	metrics.IndexerDirCacheMisses.Inc()

	entries, err := filesystem.ReadDirWithRetry(dir, c.retry)
	if err != nil {
		return nil, catalog.NewError(catalog.KindIO, "read directory", dir, err)
	}

	files := make([]catalog.FileRecord, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if c.skipHidden && filesystem.IsHidden(path) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		rec, err := catalog.NewFileRecord(path, info.Size(), info.ModTime(), c.table)
		if err != nil {
			continue
		}
		files = append(files, rec)
	}

	l := &dirListing{files: files, dir: assembler.NewDirectory(files)}
	c.cache.Add(dir, l)
	return l, nil
}

// Forget drops dir so the next lookup re-reads it.
func (c *dirCache) Forget(dir string) {
	c.cache.Remove(dir)
}
