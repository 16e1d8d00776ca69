package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"media-catalog/internal/catalog"
	"media-catalog/internal/logging"
)

// writeJSON encodes v as JSON and writes it to the response writer.
// Any encoding or write errors are logged since we typically cannot
// recover from them in an HTTP handler context.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes an error response as JSON with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, map[string]string{"error": message})
}

// writeJSONStatus writes a simple status response as JSON.
func writeJSONStatus(w http.ResponseWriter, statusCode int, status, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, map[string]string{"status": status, "message": message})
}

// writeStoreError maps index errors onto HTTP status codes.
func writeStoreError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, catalog.ErrIndexNotFound):
		writeJSONError(w, "index not found", http.StatusServiceUnavailable)
	case catalog.IsKind(err, catalog.KindConfiguration):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	default:
		logging.Error("%s failed: %v", op, err)
		writeJSONError(w, op+" failed", http.StatusInternalServerError)
	}
}

// intParam returns the positive integer query parameter name, or def.
func intParam(r *http.Request, name string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(name)); err == nil && v > 0 {
		return v
	}
	return def
}
