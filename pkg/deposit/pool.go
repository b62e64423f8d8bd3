package deposit

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/depositd/internal/logger"
)

// Executor runs one deposit attempt. *Task is the production implementation.
type Executor interface {
	Execute(ctx context.Context, depositID string) error
}

// PoolConfig holds configuration for the deposit worker pool.
type PoolConfig struct {
	// QueueSize is the maximum number of pending deposits.
	// Default: 1000
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`

	// Workers is the number of concurrent deposit workers.
	// Default: 4
	Workers int `mapstructure:"workers" yaml:"workers"`
}

// ApplyDefaults fills in zero values.
func (c *PoolConfig) ApplyDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 1000
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
}

// PoolStats is a snapshot of the pool's counters.
type PoolStats struct {
	Pending   int
	Completed int
	Failed    int
	LastError error
}

// Pool runs deposit tasks on a bounded set of workers. Ordering is
// unordered, but each deposit id has at most one queued-or-running attempt
// at a time: Enqueue refuses duplicates until the running attempt finishes.
type Pool struct {
	exec    Executor
	onError func(ctx context.Context, err error)
	metrics Metrics

	queue chan string

	workers   int
	wg        sync.WaitGroup
	stopCh    chan struct{}
	stoppedCh chan struct{}
	started   bool

	mu          sync.Mutex
	inflight    map[string]struct{}
	pending     int
	completed   int
	failed      int
	lastError   error
	lastErrorAt time.Time
}

// NewPool creates a deposit worker pool. onError receives every task error
// (the error handler plugs in here); nil means errors are only logged.
func NewPool(exec Executor, cfg PoolConfig, onError func(ctx context.Context, err error)) *Pool {
	cfg.ApplyDefaults()
	return &Pool{
		exec:      exec,
		onError:   onError,
		queue:     make(chan string, cfg.QueueSize),
		workers:   cfg.Workers,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
		inflight:  make(map[string]struct{}),
	}
}

// SetMetrics attaches pipeline instrumentation. Nil is valid and free.
func (p *Pool) SetMetrics(m Metrics) { p.metrics = m }

// Start begins processing queued deposits.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	logger.Info("Starting deposit worker pool", "workers", p.workers)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	go func() {
		p.wg.Wait()
		close(p.stoppedCh)
	}()
}

// Stop shuts the pool down, draining what it can inside the timeout.
func (p *Pool) Stop(timeout time.Duration) {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	logger.Info("Stopping deposit worker pool", "pending", p.Pending())
	close(p.stopCh)

	select {
	case <-p.stoppedCh:
		logger.Info("Deposit worker pool stopped")
	case <-time.After(timeout):
		logger.Warn("Deposit worker pool stop timed out", "pending", p.Pending())
	}
}

// Enqueue schedules a deposit. Returns false when the deposit already has a
// queued-or-running attempt, or when the queue is full; the caller decides
// whether to drop or retry (a redelivered ingress event will reschedule it
// anyway).
func (p *Pool) Enqueue(depositID string) bool {
	p.mu.Lock()
	if _, dup := p.inflight[depositID]; dup {
		p.mu.Unlock()
		logger.Debug("deposit already scheduled, skipping", "deposit", depositID)
		return false
	}
	select {
	case p.queue <- depositID:
		p.inflight[depositID] = struct{}{}
		p.pending++
		depth := p.pending
		p.mu.Unlock()
		recordQueueDepth(p.metrics, depth)
		return true
	default:
		p.mu.Unlock()
		logger.Warn("Deposit queue full, dropping request", "deposit", depositID)
		return false
	}
}

// Pending returns the number of queued, unprocessed deposits.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

// Stats returns a snapshot of the pool's counters.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Pending:   p.pending,
		Completed: p.completed,
		Failed:    p.failed,
		LastError: p.lastError,
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			// Drain whatever is already queued, then exit.
			for {
				select {
				case depositID := <-p.queue:
					p.process(ctx, depositID)
				default:
					return
				}
			}
		case depositID := <-p.queue:
			p.process(ctx, depositID)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pool) process(ctx context.Context, depositID string) {
	err := p.exec.Execute(ctx, depositID)

	p.mu.Lock()
	delete(p.inflight, depositID)
	p.pending--
	depth := p.pending
	if err != nil {
		p.failed++
		p.lastError = err
		p.lastErrorAt = time.Now()
	} else {
		p.completed++
	}
	p.mu.Unlock()
	recordQueueDepth(p.metrics, depth)

	if err != nil {
		logger.Error("deposit task failed", "deposit", depositID, "error", err)
		if p.onError != nil {
			p.onError(ctx, err)
		}
	}
}
