package deposit

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/depositd/internal/logger"
	"github.com/marmos91/depositd/pkg/model"
	"github.com/marmos91/depositd/pkg/store"
)

// Dispatcher fans a submitted submission out into one deposit per target
// repository and schedules each on the worker pool.
type Dispatcher struct {
	client store.Client
	pool   *Pool
}

// NewDispatcher wires a dispatcher.
func NewDispatcher(client store.Client, pool *Pool) *Dispatcher {
	return &Dispatcher{client: client, pool: pool}
}

// Dispatch processes one submission. A deposit is created only when the
// (submission, repository) pair has no live deposit already; an existing
// dispatchable deposit is rescheduled instead of duplicated.
func (d *Dispatcher) Dispatch(ctx context.Context, submissionID string) error {
	sub, err := store.Get[model.Submission](ctx, d.client, submissionID)
	if err != nil {
		return &SubmissionError{SubmissionID: submissionID, Err: fmt.Errorf("read: %w", err)}
	}
	if !sub.Submitted {
		logger.Debug("submission not submitted, ignoring", "submission", submissionID)
		return nil
	}
	if sub.AggregatedDepositStatus.Terminal() {
		logger.Debug("submission already settled, ignoring", "submission", submissionID)
		return nil
	}

	existing, err := d.depositsBySubmission(ctx, submissionID)
	if err != nil {
		return &SubmissionError{SubmissionID: submissionID, Err: err}
	}

	for _, repoID := range sub.Repositories {
		if err := d.dispatchOne(ctx, sub, repoID, existing[repoID]); err != nil {
			return &SubmissionError{SubmissionID: submissionID, Err: err}
		}
	}
	return nil
}

// depositsBySubmission indexes the submission's deposits by repository id.
func (d *Dispatcher) depositsBySubmission(ctx context.Context, submissionID string) (map[string]*model.Deposit, error) {
	ids, err := d.client.FindByAttribute(ctx, model.KindDeposit, "submission", submissionID)
	if err != nil {
		return nil, fmt.Errorf("find deposits: %w", err)
	}
	deps, err := store.GetAll[model.Deposit](ctx, d.client, ids)
	if err != nil {
		return nil, fmt.Errorf("read deposits: %w", err)
	}

	byRepo := make(map[string]*model.Deposit, len(deps))
	for _, dep := range deps {
		// At most one live deposit per pair; prefer the non-terminal one
		// if administration left old terminal records behind.
		if cur, ok := byRepo[dep.Repository]; ok && !cur.DepositStatus.Terminal() {
			continue
		}
		byRepo[dep.Repository] = dep
	}
	return byRepo, nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, sub *model.Submission, repoID string, existing *model.Deposit) error {
	if existing != nil {
		d.reschedule(sub.GetID(), repoID, existing)
		return nil
	}
	return d.createDeposit(ctx, sub.GetID(), repoID)
}

// reschedule handles a pair that already has a deposit.
func (d *Dispatcher) reschedule(submissionID, repoID string, dep *model.Deposit) {
	switch {
	case dep.DepositStatus.Terminal():
		logger.Debug("deposit already settled",
			"submission", submissionID, "repository", repoID, "status", dep.DepositStatus)
	case dep.DepositStatus == model.DepositSubmitted:
		// Live and in flight; the status resolver owns it.
	default:
		logger.Info("rescheduling existing deposit",
			"deposit", dep.GetID(), "status", dep.DepositStatus)
		d.pool.Enqueue(dep.GetID())
	}
}

// createDeposit creates the pair's deposit behind a critical section on the
// submission record. The precondition re-runs the live-deposit lookup on
// every attempt and the no-op mutation's version bump is the serialization
// token: two dispatchers racing on the same pair conflict on the submission
// update, and the loser re-observes the winner's deposit instead of writing
// a duplicate.
func (d *Dispatcher) createDeposit(ctx context.Context, submissionID, repoID string) error {
	var (
		found   *model.Deposit
		findErr error
	)
	res := store.PerformCritical[model.Submission](ctx, d.client, submissionID, store.Critical[model.Submission]{
		Precondition: func(*model.Submission) bool {
			var existing map[string]*model.Deposit
			existing, findErr = d.depositsBySubmission(ctx, submissionID)
			if findErr != nil {
				return false
			}
			found = existing[repoID]
			return found == nil
		},
		Mutation: func(*model.Submission) {},
	})
	if findErr != nil {
		return findErr
	}
	if res.Err != nil {
		return fmt.Errorf("reserve deposit for repository %q: %w", repoID, res.Err)
	}
	if !res.Success {
		// Another dispatcher created the pair's deposit first.
		if found != nil {
			d.reschedule(submissionID, repoID, found)
		}
		return nil
	}

	now := time.Now().UTC()
	dep := &model.Deposit{
		Submission: submissionID,
		Repository: repoID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	id, err := d.client.Create(ctx, dep)
	if err != nil {
		return fmt.Errorf("create deposit for repository %q: %w", repoID, err)
	}

	logger.Info("deposit created", "deposit", id, "submission", submissionID, "repository", repoID)
	d.pool.Enqueue(id)
	return nil
}
