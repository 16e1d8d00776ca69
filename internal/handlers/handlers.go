package handlers

import (
	"media-catalog/internal/database"
	"media-catalog/internal/indexer"
	"media-catalog/internal/streaming"
)

// Handlers serves the read-only query API over the index. indexer may be nil
// when the server only answers queries against an index built elsewhere.
type Handlers struct {
	db      *database.Database
	indexer *indexer.Indexer
	stream  streaming.Config
}

// New creates the HTTP handlers.
func New(db *database.Database, idx *indexer.Indexer) *Handlers {
	return &Handlers{
		db:      db,
		indexer: idx,
		stream:  streaming.DefaultConfig(),
	}
}
