package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/depositd/pkg/model"
	"github.com/marmos91/depositd/pkg/store"
)

// SubmissionsHandler exposes submission records with their deposit and
// repository-copy state.
type SubmissionsHandler struct {
	client store.Client
}

// NewSubmissionsHandler creates a new SubmissionsHandler.
func NewSubmissionsHandler(client store.Client) *SubmissionsHandler {
	return &SubmissionsHandler{client: client}
}

// SubmissionDetail is a submission with its pipeline records attached.
type SubmissionDetail struct {
	Submission *model.Submission       `json:"submission"`
	Deposits   []*model.Deposit        `json:"deposits"`
	Copies     []*model.RepositoryCopy `json:"copies"`
}

// List handles GET /api/v1/submissions.
//
// By default all submitted submissions are returned; ?status= narrows to an
// aggregated status.
func (h *SubmissionsHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		ids []string
		err error
	)

	if status := r.URL.Query().Get("status"); status != "" {
		ids, err = h.client.FindByAttribute(r.Context(), model.KindSubmission,
			"aggregatedDepositStatus", status)
	} else {
		ids, err = h.client.FindByAttribute(r.Context(), model.KindSubmission,
			"submitted", "true")
	}
	if err != nil {
		InternalServerError(w, "Failed to query submissions")
		return
	}

	subs, err := store.GetAll[model.Submission](r.Context(), h.client, ids)
	if err != nil {
		InternalServerError(w, "Failed to read submissions")
		return
	}

	WriteJSONOK(w, subs)
}

// Get handles GET /api/v1/submissions/{id}.
func (h *SubmissionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	sub, err := store.Get[model.Submission](ctx, h.client, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			NotFound(w, "Submission not found")
			return
		}
		InternalServerError(w, "Failed to read submission")
		return
	}

	depIDs, err := h.client.FindByAttribute(ctx, model.KindDeposit, "submission", id)
	if err != nil {
		InternalServerError(w, "Failed to query deposits")
		return
	}
	deps, err := store.GetAll[model.Deposit](ctx, h.client, depIDs)
	if err != nil {
		InternalServerError(w, "Failed to read deposits")
		return
	}

	copyIDs, err := h.client.FindByAttribute(ctx, model.KindRepositoryCopy, "submission", id)
	if err != nil {
		InternalServerError(w, "Failed to query repository copies")
		return
	}
	copies, err := store.GetAll[model.RepositoryCopy](ctx, h.client, copyIDs)
	if err != nil {
		InternalServerError(w, "Failed to read repository copies")
		return
	}

	WriteJSONOK(w, SubmissionDetail{
		Submission: sub,
		Deposits:   deps,
		Copies:     copies,
	})
}
