package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/marmos91/depositd/pkg/store"
)

// HealthHandler handles health check endpoints.
//
// Health endpoints are unauthenticated and provide:
//   - Liveness probe: Is the server process running?
//   - Readiness probe: Is the record store reachable?
type HealthHandler struct {
	client    store.Client
	startedAt time.Time
}

// NewHealthHandler creates a new health handler.
//
// The client parameter may be nil, in which case the readiness check
// returns unhealthy status.
func NewHealthHandler(client store.Client) *HealthHandler {
	return &HealthHandler{client: client, startedAt: time.Now().UTC()}
}

// Liveness handles GET /health - simple liveness probe.
//
// Returns 200 OK if the server process is running. Designed for Kubernetes
// liveness probes; it succeeds as long as the HTTP server is responsive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startedAt)
	writeJSON(w, http.StatusOK, healthyResponse(map[string]interface{}{
		"service":    "depositd",
		"started_at": h.startedAt.Format(time.RFC3339),
		"uptime":     uptime.Round(time.Second).String(),
		"uptime_sec": int64(uptime.Seconds()),
	}))
}

// Readiness handles GET /health/ready - readiness probe.
//
// Returns 200 OK when the record store answers its health check, 503
// Service Unavailable otherwise.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.client == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("record store not initialized"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := h.client.HealthCheck(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, healthyResponse(map[string]interface{}{
		"store_latency": time.Since(start).String(),
	}))
}
