package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"media-catalog/internal/indexer"
	"media-catalog/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusStarting = "starting"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status            string `json:"status"`
	Ready             bool   `json:"ready"`
	Version           string `json:"version"`
	Uptime            string `json:"uptime,omitempty"`
	Indexing          bool   `json:"indexing"`
	LastIndexed       string `json:"lastIndexed,omitempty"`
	LastGeneration    string `json:"lastGeneration,omitempty"`
	LastStatus        string `json:"lastStatus,omitempty"`
	InitialIndexError string `json:"initialIndexError,omitempty"`

	// Progress of the running pass
	Progress *indexer.IndexProgress `json:"progress,omitempty"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`

	// Stats summary
	TotalRecords int `json:"totalRecords,omitempty"`
	TotalUnits   int `json:"totalUnits,omitempty"`
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Ready:        true,
		Version:      startup.Version,
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	if h.indexer != nil {
		healthStatus := h.indexer.GetHealthStatus()
		response.Ready = healthStatus.Ready
		response.Uptime = healthStatus.Uptime
		response.Indexing = healthStatus.Indexing
		response.LastGeneration = healthStatus.LastGeneration
		response.LastStatus = healthStatus.LastStatus
		response.InitialIndexError = healthStatus.InitialIndexError
		response.Progress = healthStatus.IndexProgress
		if !healthStatus.LastIndexed.IsZero() {
			response.LastIndexed = healthStatus.LastIndexed.Format(time.RFC3339)
		}
	}

	if stats, err := h.db.GetStats(r.Context()); err == nil {
		response.TotalRecords = stats.TotalRecords
		response.TotalUnits = stats.TotalUnits
	}

	switch {
	case response.InitialIndexError != "":
		response.Status = statusDegraded
	case response.Ready:
		response.Status = statusHealthy
	default:
		response.Status = statusStarting
	}

	w.Header().Set("Content-Type", "application/json")

	// Return 503 only if not ready at all
	if !response.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	writeJSON(w, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 only when the service is ready to accept traffic
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.indexer == nil || h.indexer.IsReady() {
		w.WriteHeader(http.StatusOK)
		writeJSON(w, map[string]string{
			"status": "ready",
		})
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, map[string]string{
			"status": "not_ready",
		})
	}
}

// GetVersion returns the build information.
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, startup.GetBuildInfo())
}

// MetricsHandler serves the default Prometheus registry.
func (h *Handlers) MetricsHandler() http.Handler {
	return promhttp.Handler()
}
