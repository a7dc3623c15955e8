package handler

import (
	"net/http"

	natsclient "github.com/askatlas/navigation-assistant/internal/nats"
	"github.com/askatlas/navigation-assistant/internal/service"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	natsClient *natsclient.Client
	sessions   *service.SessionService
}

// NewHealthHandler creates a new health handler. A nil NATS client means
// events stay in process.
func NewHealthHandler(natsClient *natsclient.Client, sessions *service.SessionService) *HealthHandler {
	return &HealthHandler{
		natsClient: natsClient,
		sessions:   sessions,
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
	if h.natsClient != nil && !h.natsClient.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}

	bus := "local"
	if h.natsClient != nil {
		bus = "nats"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ready",
		"bus":      bus,
		"sessions": h.sessions.Count(),
	})
}
