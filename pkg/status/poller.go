package status

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/depositd/internal/logger"
	"github.com/marmos91/depositd/pkg/model"
	"github.com/marmos91/depositd/pkg/retry"
	"github.com/marmos91/depositd/pkg/store"
)

// PollerConfig holds the poll schedule for one deposit.
type PollerConfig struct {
	// InitialDelay is the wait before the second poll. Default 10s.
	InitialDelay time.Duration `mapstructure:"initial_delay" yaml:"initial_delay"`

	// Factor multiplies the delay after every poll. Default 2.
	Factor float64 `mapstructure:"factor" yaml:"factor"`

	// MaxDelay caps a single inter-poll delay. Default 1h.
	MaxDelay time.Duration `mapstructure:"max_delay" yaml:"max_delay"`

	// Timeout bounds the whole poll loop; exhaustion fails the deposit.
	// Default 7 days.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ApplyDefaults fills in zero values.
func (c *PollerConfig) ApplyDefaults() {
	if c.InitialDelay <= 0 {
		c.InitialDelay = 10 * time.Second
	}
	if c.Factor <= 1 {
		c.Factor = 2
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = time.Hour
	}
	if c.Timeout <= 0 {
		c.Timeout = 7 * 24 * time.Hour
	}
}

// Poller drives one background poll loop per submitted deposit. Enqueueing a
// deposit already being polled is a no-op, so redelivered ingress events are
// harmless.
type Poller struct {
	client   store.Client
	resolver *Resolver
	cfg      PollerConfig

	mu     sync.Mutex
	active map[string]struct{}
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewPoller wires a status poller.
func NewPoller(client store.Client, resolver *Resolver, cfg PollerConfig) *Poller {
	cfg.ApplyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		client:   client,
		resolver: resolver,
		cfg:      cfg,
		active:   make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Enqueue starts polling the deposit's status reference. Returns false when
// the deposit is already being polled.
func (p *Poller) Enqueue(depositID string) bool {
	p.mu.Lock()
	if _, dup := p.active[depositID]; dup {
		p.mu.Unlock()
		return false
	}
	p.active[depositID] = struct{}{}
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			delete(p.active, depositID)
			p.mu.Unlock()
		}()
		p.poll(depositID)
	}()
	return true
}

// Active returns the number of deposits currently being polled.
func (p *Poller) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// Stop aborts all poll loops and waits for them to exit.
func (p *Poller) Stop() {
	p.cancel()
	p.wg.Wait()
}

func (p *Poller) poll(depositID string) {
	policy := retry.Policy{
		InitialDelay: p.cfg.InitialDelay,
		Factor:       p.cfg.Factor,
		MaxDelay:     p.cfg.MaxDelay,
		Timeout:      p.cfg.Timeout,
	}

	outcome, err := retry.Await(p.ctx, policy, func(ctx context.Context) (Outcome, error) {
		return p.resolver.Resolve(ctx, depositID)
	}, func(o Outcome) bool {
		return o.Terminal()
	})

	switch {
	case outcome.Terminal():
		return
	case p.ctx.Err() != nil:
		// Shutting down; the deposit stays submitted and a later run
		// resumes polling.
		return
	default:
		logger.Warn("status polling exhausted, failing deposit",
			"deposit", depositID, "error", err)
		p.exhaust(depositID, err)
	}
}

// exhaust fails a deposit whose archive never produced a decision inside the
// polling window.
func (p *Poller) exhaust(depositID string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	msg := fmt.Sprintf("status polling exhausted after %s", p.cfg.Timeout)
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}

	res := store.PerformCritical[model.Deposit](ctx, p.client, depositID, store.Critical[model.Deposit]{
		Precondition: func(d *model.Deposit) bool { return !d.DepositStatus.Terminal() },
		Mutation: func(d *model.Deposit) {
			d.DepositStatus = model.DepositFailed
			d.StatusMessage = msg
			d.UpdatedAt = time.Now().UTC()
		},
	})
	if res.Err != nil {
		logger.Error("could not fail exhausted deposit", "deposit", depositID, "error", res.Err)
	}
}
