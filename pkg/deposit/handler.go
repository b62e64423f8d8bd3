package deposit

import (
	"context"
	"errors"
	"time"

	"github.com/marmos91/depositd/internal/logger"
	"github.com/marmos91/depositd/pkg/model"
	"github.com/marmos91/depositd/pkg/store"
)

// ErrorHandler folds task and dispatch failures back into the record store:
// a DepositError fails its deposit, a SubmissionError fails its submission's
// aggregated status, anything else is logged and dropped.
type ErrorHandler struct {
	client store.Client
}

// NewErrorHandler wires an error handler.
func NewErrorHandler(client store.Client) *ErrorHandler {
	return &ErrorHandler{client: client}
}

// Handle classifies err and records the failure. Wrapped errors are
// inspected through their cause chain.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil {
		return
	}

	var depErr *DepositError
	if errors.As(err, &depErr) {
		h.failDeposit(ctx, depErr)
		return
	}

	var subErr *SubmissionError
	if errors.As(err, &subErr) {
		h.failSubmission(ctx, subErr)
		return
	}

	logger.Error("unattributed pipeline error", "error", err)
}

func (h *ErrorHandler) failDeposit(ctx context.Context, depErr *DepositError) {
	res := store.PerformCritical[model.Deposit](ctx, h.client, depErr.DepositID, store.Critical[model.Deposit]{
		Precondition: func(d *model.Deposit) bool { return !d.DepositStatus.Terminal() },
		Mutation: func(d *model.Deposit) {
			d.DepositStatus = model.DepositFailed
			if d.StatusMessage == "" {
				d.StatusMessage = depErr.Error()
			}
			d.UpdatedAt = time.Now().UTC()
		},
	})
	switch {
	case res.Err != nil:
		logger.Error("could not fail deposit", "deposit", depErr.DepositID, "error", res.Err)
	case !res.Success:
		logger.Debug("deposit already terminal, failure not recorded", "deposit", depErr.DepositID)
	default:
		logger.Warn("deposit marked failed", "deposit", depErr.DepositID, "cause", depErr.Err)
	}
}

func (h *ErrorHandler) failSubmission(ctx context.Context, subErr *SubmissionError) {
	res := store.PerformCritical[model.Submission](ctx, h.client, subErr.SubmissionID, store.Critical[model.Submission]{
		Precondition: func(s *model.Submission) bool { return !s.AggregatedDepositStatus.Terminal() },
		Mutation: func(s *model.Submission) {
			s.AggregatedDepositStatus = model.AggregatedFailed
		},
	})
	switch {
	case res.Err != nil:
		logger.Error("could not fail submission", "submission", subErr.SubmissionID, "error", res.Err)
	case !res.Success:
		logger.Debug("submission already settled, failure not recorded", "submission", subErr.SubmissionID)
	default:
		logger.Warn("submission marked failed", "submission", subErr.SubmissionID, "cause", subErr.Err)
	}
}
