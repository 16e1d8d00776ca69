package database

import (
	"time"

	"media-catalog/internal/catalog"
)

// StoredRecord is a record as persisted in the index.
type StoredRecord struct {
	Path             string               `json:"path"`
	Name             string               `json:"name"`
	Extension        string               `json:"extension"`
	Category         string               `json:"category"`
	SizeBytes        int64                `json:"size_bytes"`
	ModifiedTime     time.Time            `json:"modified_time"`
	AmbiguousSidecar bool                 `json:"ambiguous_sidecar"`
	Generation       string               `json:"generation"`
	Sidecars         []StoredSidecar      `json:"sidecars"`
	Units            []catalog.CorpusUnit `json:"units"`
}

// StoredSidecar is one sidecar linked to a stored record.
type StoredSidecar struct {
	Path     string `json:"path"`
	Category string `json:"category"`
}

// Hit is one search match. Path is the file the matching content was read
// from and PrimaryPath the record it belongs to.
type Hit struct {
	Path        string             `json:"path"`
	PrimaryPath string             `json:"primary_path"`
	SourceType  catalog.SourceType `json:"source_type"`
	Kind        catalog.UnitKind   `json:"kind"`
	Key         string             `json:"key,omitempty"`
	Value       string             `json:"value,omitempty"`
	ChunkIndex  *int               `json:"chunk_index,omitempty"`
	Snippet     string             `json:"snippet,omitempty"`
}

// SearchOptions narrows a search.
type SearchOptions struct {
	Query      string
	SourceType catalog.SourceType
	Limit      int
}

// SearchResult is the answer to a query. Found is false when nothing in the
// index matched; Hits is then empty.
type SearchResult struct {
	Query  string `json:"query"`
	Mode   string `json:"mode"` // "fields" or "text"
	Found  bool   `json:"found"`
	Hits   []Hit  `json:"hits"`
	Total  int    `json:"total"`
	Limit  int    `json:"limit"`
	Reason string `json:"reason,omitempty"`
}

// ScanStatus values
const (
	ScanRunning   = "running"
	ScanCompleted = "completed"
	ScanFailed    = "failed"
	ScanCancelled = "cancelled"
)

// ScanInfo is one row of the scans table.
type ScanInfo struct {
	Generation   string         `json:"generation"`
	RootPath     string         `json:"root_path"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
	Status       string         `json:"status"`
	Files        int            `json:"files"`
	Records      int            `json:"records"`
	Units        int            `json:"units"`
	Retired      int            `json:"retired"`
	DroppedFacts int            `json:"dropped_facts"`
	Errors       map[string]int `json:"errors"`
}
