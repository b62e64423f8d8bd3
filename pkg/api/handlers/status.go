package handlers

import (
	"net/http"

	"github.com/marmos91/depositd/pkg/deposit"
)

// PoolStatser reports the deposit pool's counters.
type PoolStatser interface {
	Stats() deposit.PoolStats
}

// PollerStatser reports how many deposits are being polled.
type PollerStatser interface {
	Active() int
}

// StatusHandler exposes a snapshot of the pipeline's moving parts.
type StatusHandler struct {
	pool   PoolStatser
	poller PollerStatser
}

// NewStatusHandler creates a new StatusHandler. Either dependency may be
// nil; the corresponding section is omitted.
func NewStatusHandler(pool PoolStatser, poller PollerStatser) *StatusHandler {
	return &StatusHandler{pool: pool, poller: poller}
}

// PipelineStatus is the response body for GET /api/v1/status.
type PipelineStatus struct {
	Pool   *PoolStatus   `json:"pool,omitempty"`
	Poller *PollerStatus `json:"poller,omitempty"`
}

// PoolStatus describes the deposit worker pool.
type PoolStatus struct {
	Pending   int    `json:"pending"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	LastError string `json:"last_error,omitempty"`
}

// PollerStatus describes the status poller.
type PollerStatus struct {
	Active int `json:"active"`
}

// Get handles GET /api/v1/status.
func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	var out PipelineStatus

	if h.pool != nil {
		stats := h.pool.Stats()
		ps := &PoolStatus{
			Pending:   stats.Pending,
			Completed: stats.Completed,
			Failed:    stats.Failed,
		}
		if stats.LastError != nil {
			ps.LastError = stats.LastError.Error()
		}
		out.Pool = ps
	}

	if h.poller != nil {
		out.Poller = &PollerStatus{Active: h.poller.Active()}
	}

	WriteJSONOK(w, out)
}
