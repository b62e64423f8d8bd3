package status

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/depositd/internal/logger"
	"github.com/marmos91/depositd/pkg/model"
	"github.com/marmos91/depositd/pkg/store"
)

// AggregatorConfig holds the rollup schedule.
type AggregatorConfig struct {
	// Interval between sweeps. Default 10m.
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// ApplyDefaults fills in zero values.
func (c *AggregatorConfig) ApplyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Minute
	}
}

// Aggregator periodically rolls each submitted submission's deposit statuses
// up into its aggregated status. Sweeps are non-reentrant: a tick that fires
// while the previous sweep still runs is skipped.
type Aggregator struct {
	client  store.Client
	cfg     AggregatorConfig
	metrics Metrics

	sweeping sync.Mutex
}

// NewAggregator wires an aggregator.
func NewAggregator(client store.Client, cfg AggregatorConfig) *Aggregator {
	cfg.ApplyDefaults()
	return &Aggregator{client: client, cfg: cfg}
}

// SetMetrics attaches status instrumentation. Nil is valid and free.
func (a *Aggregator) SetMetrics(m Metrics) { a.metrics = m }

// Run sweeps on the configured interval until ctx is cancelled.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	logger.Info("Starting submission status aggregator", "interval", a.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			logger.Info("Submission status aggregator stopped")
			return
		case <-ticker.C:
			if err := a.Sweep(ctx); err != nil {
				logger.Error("aggregation sweep failed", "error", err)
			}
		}
	}
}

// Sweep aggregates every submitted, unsettled submission once. Returns nil
// when a previous sweep is still running.
func (a *Aggregator) Sweep(ctx context.Context) error {
	if !a.sweeping.TryLock() {
		logger.Debug("aggregation sweep already running, skipping tick")
		return nil
	}
	defer a.sweeping.Unlock()

	start := time.Now()
	err := a.sweep(ctx)
	observeSweep(a.metrics, time.Since(start), err)
	return err
}

func (a *Aggregator) sweep(ctx context.Context) error {
	ids, err := a.client.FindByAttribute(ctx, model.KindSubmission, "submitted", "true")
	if err != nil {
		return fmt.Errorf("find submitted submissions: %w", err)
	}

	for _, id := range ids {
		if err := a.aggregate(ctx, id); err != nil {
			logger.Error("could not aggregate submission", "submission", id, "error", err)
		}
	}
	return nil
}

// aggregate recomputes one submission's aggregated status and writes it only
// when it changed.
func (a *Aggregator) aggregate(ctx context.Context, submissionID string) error {
	sub, err := store.Get[model.Submission](ctx, a.client, submissionID)
	if err != nil {
		return fmt.Errorf("read submission: %w", err)
	}
	if sub.AggregatedDepositStatus.Terminal() {
		return nil
	}

	depIDs, err := a.client.FindByAttribute(ctx, model.KindDeposit, "submission", submissionID)
	if err != nil {
		return fmt.Errorf("find deposits: %w", err)
	}
	deps, err := store.GetAll[model.Deposit](ctx, a.client, depIDs)
	if err != nil {
		return fmt.Errorf("read deposits: %w", err)
	}

	computed := Rollup(deps)
	if computed == sub.AggregatedDepositStatus {
		return nil
	}

	res := store.PerformCritical[model.Submission](ctx, a.client, submissionID, store.Critical[model.Submission]{
		Precondition: func(s *model.Submission) bool { return !s.AggregatedDepositStatus.Terminal() },
		Mutation: func(s *model.Submission) {
			s.AggregatedDepositStatus = computed
			// Complete means custody succeeded everywhere. A rejected
			// rollup settles as failed, which stays remediable.
			switch computed {
			case model.AggregatedAccepted:
				s.SubmissionStatus = model.SubmissionComplete
			case model.AggregatedRejected:
				s.SubmissionStatus = model.SubmissionFailed
			}
		},
	})
	if res.Err != nil {
		return fmt.Errorf("update aggregated status: %w", res.Err)
	}
	if res.Success {
		logger.Info("submission status aggregated",
			"submission", submissionID, "status", computed, "deposits", len(deps))
	}
	return nil
}

// Rollup derives the aggregated status from the multiset of deposit
// statuses: accepted only when every deposit is accepted; rejected or failed
// only once nothing is still in flight; otherwise in progress.
func Rollup(deps []*model.Deposit) model.AggregatedDepositStatus {
	if len(deps) == 0 {
		return model.AggregatedNotStarted
	}

	var accepted, rejected, failed, submitted int
	for _, d := range deps {
		switch d.DepositStatus {
		case model.DepositAccepted:
			accepted++
		case model.DepositRejected:
			rejected++
		case model.DepositFailed:
			failed++
		case model.DepositSubmitted:
			submitted++
		}
	}

	switch {
	case accepted == len(deps):
		return model.AggregatedAccepted
	case rejected > 0 && submitted == 0:
		return model.AggregatedRejected
	case failed > 0 && submitted == 0:
		return model.AggregatedFailed
	default:
		return model.AggregatedInProgress
	}
}
