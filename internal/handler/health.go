package handler

import (
	"context"
	"net/http"
)

// ReadyChecker reports whether a dependency can serve requests.
type ReadyChecker interface {
	Ready() bool
}

// Pinger checks a remote dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	source ReadyChecker
	broker Pinger
}

// NewHealthHandler creates a new health handler. broker is nil when
// messaging is disabled.
func NewHealthHandler(source ReadyChecker, broker Pinger) *HealthHandler {
	return &HealthHandler{
		source: source,
		broker: broker,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.source == nil || !h.source.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "data source schema not loaded",
		})
		return
	}

	if h.broker != nil {
		if err := h.broker.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"reason": err.Error(),
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
