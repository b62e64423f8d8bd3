// Package ingress feeds the pipeline: change events for submissions and
// deposits arrive from a webhook or from the periodic store scan, pass a
// policy filter, and are routed to the dispatcher or the status poller.
package ingress

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/depositd/internal/logger"
	"github.com/marmos91/depositd/pkg/model"
	"github.com/marmos91/depositd/pkg/store"
)

// EventKind classifies a change notification.
type EventKind string

const (
	EventCreated  EventKind = "created"
	EventModified EventKind = "modified"
)

// Event identifies one changed record.
type Event struct {
	ID         string     `json:"id"`
	Kind       EventKind  `json:"kind"`
	EntityType model.Kind `json:"entityType"`
}

// Policy filters which events enter the pipeline.
type Policy struct {
	// EntityTypes lists the accepted record kinds.
	EntityTypes []model.Kind

	// Kinds lists the accepted event kinds.
	Kinds []EventKind
}

// DefaultPolicy accepts submission and deposit create/modify events.
func DefaultPolicy() Policy {
	return Policy{
		EntityTypes: []model.Kind{model.KindSubmission, model.KindDeposit},
		Kinds:       []EventKind{EventCreated, EventModified},
	}
}

// Accepts reports whether the event passes the filter.
func (p Policy) Accepts(e Event) bool {
	return contains(p.EntityTypes, e.EntityType) && contains(p.Kinds, e.Kind)
}

func contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// SubmissionDispatcher fans a submission into deposits (the dispatcher in
// pkg/deposit).
type SubmissionDispatcher interface {
	Dispatch(ctx context.Context, submissionID string) error
}

// DepositPoller starts status polling for a submitted deposit.
type DepositPoller interface {
	Enqueue(depositID string) bool
}

// Config holds the ingress queue shape.
type Config struct {
	// QueueSize is the maximum number of buffered events. Default: 1000.
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`

	// Workers is the number of concurrent event handlers. Default: 2.
	Workers int `mapstructure:"workers" yaml:"workers"`
}

// ApplyDefaults fills in zero values.
func (c *Config) ApplyDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 1000
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
}

// Ingress routes accepted events to the pipeline. Shutdown drains what is
// already queued; dropped or unseen events are recovered by the poll source,
// so redelivery is tolerated throughout.
type Ingress struct {
	client     store.Client
	policy     Policy
	dispatcher SubmissionDispatcher
	poller     DepositPoller
	onError    func(ctx context.Context, err error)

	queue chan Event

	workers   int
	wg        sync.WaitGroup
	stopCh    chan struct{}
	stoppedCh chan struct{}
	started   bool
	mu        sync.Mutex
}

// New wires an ingress. onError receives dispatch failures (the error
// handler plugs in here); nil means they are only logged.
func New(
	client store.Client,
	policy Policy,
	dispatcher SubmissionDispatcher,
	poller DepositPoller,
	cfg Config,
	onError func(ctx context.Context, err error),
) *Ingress {
	cfg.ApplyDefaults()
	return &Ingress{
		client:     client,
		policy:     policy,
		dispatcher: dispatcher,
		poller:     poller,
		onError:    onError,
		queue:      make(chan Event, cfg.QueueSize),
		workers:    cfg.Workers,
		stopCh:     make(chan struct{}),
		stoppedCh:  make(chan struct{}),
	}
}

// Start begins processing events.
func (i *Ingress) Start(ctx context.Context) {
	i.mu.Lock()
	if i.started {
		i.mu.Unlock()
		return
	}
	i.started = true
	i.mu.Unlock()

	logger.Info("Starting event ingress", "workers", i.workers)
	for n := 0; n < i.workers; n++ {
		i.wg.Add(1)
		go i.worker(ctx)
	}
	go func() {
		i.wg.Wait()
		close(i.stoppedCh)
	}()
}

// Stop drains queued events best-effort inside the timeout, then stops.
func (i *Ingress) Stop(timeout time.Duration) {
	i.mu.Lock()
	if !i.started {
		i.mu.Unlock()
		return
	}
	i.mu.Unlock()

	close(i.stopCh)
	select {
	case <-i.stoppedCh:
		logger.Info("Event ingress stopped")
	case <-time.After(timeout):
		logger.Warn("Event ingress stop timed out", "queued", len(i.queue))
	}
}

// Notify offers an event to the pipeline. Returns false when the event was
// filtered out or the queue is full; a full queue is safe to ignore because
// the poll source re-discovers missed submissions.
func (i *Ingress) Notify(e Event) bool {
	if !i.policy.Accepts(e) {
		logger.Debug("event filtered", "id", e.ID, "type", e.EntityType, "kind", e.Kind)
		return false
	}
	select {
	case i.queue <- e:
		return true
	default:
		logger.Warn("ingress queue full, dropping event", "id", e.ID, "type", e.EntityType)
		return false
	}
}

func (i *Ingress) worker(ctx context.Context) {
	defer i.wg.Done()
	for {
		select {
		case <-i.stopCh:
			for {
				select {
				case e := <-i.queue:
					i.handle(ctx, e)
				default:
					return
				}
			}
		case e := <-i.queue:
			i.handle(ctx, e)
		case <-ctx.Done():
			return
		}
	}
}

func (i *Ingress) handle(ctx context.Context, e Event) {
	switch e.EntityType {
	case model.KindSubmission:
		if err := i.dispatcher.Dispatch(ctx, e.ID); err != nil {
			logger.Error("submission dispatch failed", "submission", e.ID, "error", err)
			if i.onError != nil {
				i.onError(ctx, err)
			}
		}
	case model.KindDeposit:
		i.handleDeposit(ctx, e)
	}
}

// handleDeposit arms the status poller for deposits that just entered the
// submitted state with a status reference; everything else is acknowledged
// without work.
func (i *Ingress) handleDeposit(ctx context.Context, e Event) {
	dep, err := store.Get[model.Deposit](ctx, i.client, e.ID)
	if err != nil {
		logger.Error("could not read deposit for event", "deposit", e.ID, "error", err)
		return
	}
	if dep.DepositStatus != model.DepositSubmitted || dep.DepositStatusRef == "" {
		return
	}
	i.poller.Enqueue(e.ID)
}
