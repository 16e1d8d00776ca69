package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"media-catalog/internal/logging"
	"media-catalog/internal/middleware"
)

// NewRouter registers every route. /metrics and the request metrics
// middleware are only mounted when metricsEnabled.
func (h *Handlers) NewRouter(metricsEnabled bool) *mux.Router {
	r := mux.NewRouter()
	if metricsEnabled {
		r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	}

	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)
	if metricsEnabled {
		r.Handle("/metrics", h.MetricsHandler())
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/search", h.Search).Methods(http.MethodGet)
	api.HandleFunc("/record", h.GetRecord).Methods(http.MethodGet)
	api.HandleFunc("/export", h.Export).Methods(http.MethodGet)
	api.HandleFunc("/scans", h.ListScans).Methods(http.MethodGet)
	api.HandleFunc("/scans/last", h.LastScan).Methods(http.MethodGet)
	api.HandleFunc("/stats", h.GetStats).Methods(http.MethodGet)

	var reindex http.Handler = http.HandlerFunc(h.TriggerReindex)
	if limit, err := middleware.RateLimit(middleware.DefaultRateLimitConfig()); err != nil {
		logging.Warn("Reindex rate limiting disabled: %v", err)
	} else {
		reindex = limit(reindex)
	}
	api.Handle("/reindex", reindex).Methods(http.MethodPost)

	return r
}
