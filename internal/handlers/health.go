package handlers

import (
	"net/http"
	"time"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping() error
}

// HealthHandler serves GET /api/health.
type HealthHandler struct {
	store Pinger
}

// NewHealthHandler creates a health handler over the cache store.
func NewHealthHandler(store Pinger) *HealthHandler {
	return &HealthHandler{store: store}
}

// HealthResponse is the health endpoint's response document.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Cache     string    `json:"cache"`
}

// HealthCheck reports service liveness and cache store reachability.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Cache:     "connected",
	}
	status := http.StatusOK

	if err := h.store.Ping(); err != nil {
		response.Status = "unhealthy"
		response.Cache = "disconnected"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, response)
}
