package ingress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/depositd/internal/logger"
	"github.com/marmos91/depositd/pkg/model"
	"github.com/marmos91/depositd/pkg/store"
)

// PollSourceConfig holds the store-scan schedule.
type PollSourceConfig struct {
	// Interval between scans. Default 1m.
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// ApplyDefaults fills in zero values.
func (c *PollSourceConfig) ApplyDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
}

// PollSource periodically scans the record store for submitted submissions
// whose deposits never started, and replays them into the ingress. It is the
// safety net for change events lost between notifier restarts.
type PollSource struct {
	client  store.Client
	ingress *Ingress
	cfg     PollSourceConfig

	sweeping sync.Mutex
}

// NewPollSource wires a poll source.
func NewPollSource(client store.Client, ing *Ingress, cfg PollSourceConfig) *PollSource {
	cfg.ApplyDefaults()
	return &PollSource{client: client, ingress: ing, cfg: cfg}
}

// Run scans on the configured interval until ctx is cancelled.
func (p *PollSource) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	logger.Info("Starting submission poll source", "interval", p.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			logger.Info("Submission poll source stopped")
			return
		case <-ticker.C:
			if err := p.Sweep(ctx); err != nil {
				logger.Error("submission scan failed", "error", err)
			}
		}
	}
}

// Sweep scans once. Returns nil when a previous sweep is still running.
func (p *PollSource) Sweep(ctx context.Context) error {
	if !p.sweeping.TryLock() {
		return nil
	}
	defer p.sweeping.Unlock()

	ids, err := p.client.FindByAttribute(ctx, model.KindSubmission, "submitted", "true")
	if err != nil {
		return fmt.Errorf("find submitted submissions: %w", err)
	}

	var replayed int
	for _, id := range ids {
		sub, err := store.Get[model.Submission](ctx, p.client, id)
		if err != nil {
			logger.Error("could not read submission during scan", "submission", id, "error", err)
			continue
		}
		if !notStarted(sub) {
			continue
		}
		if p.ingress.Notify(Event{ID: id, Kind: EventModified, EntityType: model.KindSubmission}) {
			replayed++
		}
	}
	if replayed > 0 {
		logger.Info("replayed unstarted submissions", "count", replayed)
	}
	return nil
}

func notStarted(sub *model.Submission) bool {
	return sub.AggregatedDepositStatus == "" ||
		sub.AggregatedDepositStatus == model.AggregatedNotStarted
}
