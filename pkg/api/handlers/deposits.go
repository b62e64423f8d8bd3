package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/depositd/pkg/model"
	"github.com/marmos91/depositd/pkg/store"
)

// DepositEnqueuer schedules a deposit for execution. *deposit.Pool is the
// production implementation.
type DepositEnqueuer interface {
	Enqueue(depositID string) bool
}

// DepositsHandler exposes deposit records and the retry operation.
type DepositsHandler struct {
	client store.Client
	pool   DepositEnqueuer
}

// NewDepositsHandler creates a new DepositsHandler.
func NewDepositsHandler(client store.Client, pool DepositEnqueuer) *DepositsHandler {
	return &DepositsHandler{client: client, pool: pool}
}

// List handles GET /api/v1/deposits?submission=ID.
//
// The record store indexes by attribute, so listing requires a filter:
// either submission or status.
func (h *DepositsHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		ids []string
		err error
	)

	switch {
	case r.URL.Query().Get("submission") != "":
		ids, err = h.client.FindByAttribute(r.Context(), model.KindDeposit,
			"submission", r.URL.Query().Get("submission"))
	case r.URL.Query().Get("status") != "":
		ids, err = h.client.FindByAttribute(r.Context(), model.KindDeposit,
			"depositStatus", r.URL.Query().Get("status"))
	default:
		BadRequest(w, "A submission or status filter is required")
		return
	}
	if err != nil {
		InternalServerError(w, "Failed to query deposits")
		return
	}

	deps, err := store.GetAll[model.Deposit](r.Context(), h.client, ids)
	if err != nil {
		InternalServerError(w, "Failed to read deposits")
		return
	}

	WriteJSONOK(w, deps)
}

// Get handles GET /api/v1/deposits/{id}.
func (h *DepositsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dep, err := store.Get[model.Deposit](r.Context(), h.client, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFound(w, "Deposit not found")
			return
		}
		InternalServerError(w, "Failed to read deposit")
		return
	}

	WriteJSONOK(w, dep)
}

// Retry handles POST /api/v1/deposits/{id}/retry.
//
// Only failed (or never-started) deposits are retryable; submitted and
// terminal deposits are not, because their outcome is either pending at the
// archive or already decided.
func (h *DepositsHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	res := store.PerformCritical[model.Deposit](r.Context(), h.client, id, store.Critical[model.Deposit]{
		Precondition: func(d *model.Deposit) bool { return d.DepositStatus.Dispatchable() },
		Mutation: func(d *model.Deposit) {
			d.StatusMessage = ""
			d.UpdatedAt = time.Now().UTC()
		},
	})
	if res.Err != nil {
		if errors.Is(res.Err, store.ErrNotFound) {
			NotFound(w, "Deposit not found")
			return
		}
		InternalServerError(w, "Failed to re-arm deposit")
		return
	}
	if !res.Success {
		Conflict(w, "Deposit is not retryable in its current state")
		return
	}

	if !h.pool.Enqueue(id) {
		Conflict(w, "Deposit queue is full, try again later")
		return
	}

	Accepted(w, map[string]string{"deposit": id})
}
