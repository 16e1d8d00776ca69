package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"media-catalog/internal/catalog"
	"media-catalog/internal/database"
)

// Search answers GET /api/search?q=...&source_type=...&limit=...
//
// "key:value" queries match structured fields exactly, anything else is a
// text search. A query without matches is a 200 with found=false and a reason.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	opts := database.SearchOptions{
		Query:      r.URL.Query().Get("q"),
		SourceType: catalog.SourceType(r.URL.Query().Get("source_type")),
		Limit:      intParam(r, "limit", 0),
	}

	result, err := h.db.Search(r.Context(), opts)
	if err != nil {
		writeStoreError(w, "search", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, result)
}

// GetRecord answers GET /api/record?path=... with the stored record, its
// sidecars and every corpus unit.
func (h *Handlers) GetRecord(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSONError(w, "path is required", http.StatusBadRequest)
		return
	}

	rec, err := h.db.GetRecord(r.Context(), path)
	if errors.Is(err, database.ErrRecordNotFound) {
		writeJSONError(w, "record not found: "+path, http.StatusNotFound)
		return
	}
	if err != nil {
		writeStoreError(w, "get record", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, rec)
}

// ListScans answers GET /api/scans?limit=... with the most recent scan passes.
func (h *Handlers) ListScans(w http.ResponseWriter, r *http.Request) {
	scans, err := h.db.RecentScans(r.Context(), intParam(r, "limit", 20))
	if err != nil {
		writeStoreError(w, "list scans", err)
		return
	}
	if scans == nil {
		scans = []database.ScanInfo{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, scans)
}

// LastScan answers GET /api/scans/last. Without any scan it is a 404.
func (h *Handlers) LastScan(w http.ResponseWriter, r *http.Request) {
	scan, err := h.db.LastScan(r.Context())
	if err != nil {
		writeStoreError(w, "last scan", err)
		return
	}
	if scan == nil {
		writeJSONError(w, "no scan has run", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, scan)
}

// StatsResponse summarizes the index.
type StatsResponse struct {
	TotalRecords      int            `json:"totalRecords"`
	TotalUnits        int            `json:"totalUnits"`
	RecordsByCategory map[string]int `json:"recordsByCategory"`
	LastGeneration    string         `json:"lastGeneration,omitempty"`
}

// GetStats answers GET /api/stats.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.GetStats(r.Context())
	if err != nil {
		writeStoreError(w, "stats", err)
		return
	}

	response := StatsResponse{
		TotalRecords:      stats.TotalRecords,
		TotalUnits:        stats.TotalUnits,
		RecordsByCategory: stats.RecordsByCategory,
	}
	if h.indexer != nil {
		response.LastGeneration = h.indexer.LastGeneration()
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, response)
}

// TriggerReindex answers POST /api/reindex. full=true rebuilds every record
// instead of skipping unchanged ones.
func (h *Handlers) TriggerReindex(w http.ResponseWriter, r *http.Request) {
	if h.indexer == nil {
		writeJSONStatus(w, http.StatusServiceUnavailable, "unavailable", "Indexing is disabled on this server")
		return
	}

	full, _ := strconv.ParseBool(r.URL.Query().Get("full"))
	if !h.indexer.TriggerIndex(full) {
		writeJSONStatus(w, http.StatusConflict, "already_running", "Indexing is already in progress")
		return
	}

	writeJSONStatus(w, http.StatusAccepted, "started", "Re-indexing started")
}
