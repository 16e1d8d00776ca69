package handlers

import (
	"errors"
	"net/http"

	"media-catalog/internal/catalog"
	"media-catalog/internal/logging"
	"media-catalog/internal/streaming"
)

// Export answers GET /api/export?source_type=... with every stored corpus
// unit as JSON Lines, the same format `scan --jsonl` writes.
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	sourceType := catalog.SourceType(r.URL.Query().Get("source_type"))
	if sourceType != "" && !sourceType.Valid() {
		writeJSONError(w, "unknown source_type "+string(sourceType), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	lw := streaming.NewLineWriter(r.Context(), w, h.stream)
	err := h.db.ExportUnits(lw.Context(), sourceType, func(u catalog.CorpusUnit) error {
		return lw.Encode(&u)
	})
	if closeErr := lw.Close(); err == nil {
		err = closeErr
	}
	stats := lw.Stats()

	switch {
	case err == nil:
		logging.Debug("Export completed: %d units, %d bytes in %v", stats.Lines, stats.Bytes, stats.Duration)
	case errors.Is(err, streaming.ErrClientGone):
		logging.Debug("Export abandoned by client after %d units", stats.Lines)
	case stats.Lines == 0:
		w.Header().Del("X-Content-Type-Options")
		writeStoreError(w, "export", err)
	default:
		logging.Warn("Export aborted after %d units: %v", stats.Lines, err)
	}
}
