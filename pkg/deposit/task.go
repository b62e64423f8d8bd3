// Package deposit is the engine of the pipeline: the dispatcher fans a
// submitted submission into one deposit per target repository, a bounded
// worker pool runs the deposit tasks, and the error handler folds failures
// back into the record store.
package deposit

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/depositd/internal/logger"
	"github.com/marmos91/depositd/pkg/model"
	"github.com/marmos91/depositd/pkg/packaging"
	"github.com/marmos91/depositd/pkg/store"
	"github.com/marmos91/depositd/pkg/transport"
)

// RepositoryConfig is the runtime view of one target archive: which protocol
// binding carries the package, how to connect, and how to package.
type RepositoryConfig struct {
	// Protocol selects the transport binding (sword, ftp, filesystem, s3).
	Protocol string

	// Hints carries the binding's connection parameters.
	Hints transport.Hints

	// Assembly selects the packaging dialect, container, and digests.
	Assembly packaging.Options

	// StatusScheme and StatusMap drive status-document interpretation for
	// protocols that issue one; unused by the deposit task itself.
	StatusScheme string
	StatusMap    map[string]string
}

// ConfigSource resolves a repository key to its runtime configuration.
type ConfigSource interface {
	RepositoryConfig(key string) (RepositoryConfig, error)
}

// Task executes one deposit end to end: claim, assemble, transmit, record
// the outcome. Instances are shared across pool workers and must stay
// stateless apart from their wiring.
type Task struct {
	client     store.Client
	registry   *packaging.Registry
	transports map[string]transport.Transport
	configs    ConfigSource
	metrics    Metrics

	onSubmitted func(depositID string)
}

// NewTask wires a deposit task executor.
func NewTask(
	client store.Client,
	registry *packaging.Registry,
	transports map[string]transport.Transport,
	configs ConfigSource,
) *Task {
	return &Task{
		client:     client,
		registry:   registry,
		transports: transports,
		configs:    configs,
	}
}

// OnSubmitted registers the callback invoked when a deposit lands in the
// submitted state with a status reference to poll. The status resolver hangs
// off this hook.
func (t *Task) OnSubmitted(fn func(depositID string)) { t.onSubmitted = fn }

// SetMetrics attaches pipeline instrumentation. Nil is valid and free.
func (t *Task) SetMetrics(m Metrics) { t.metrics = m }

// Execute runs one deposit attempt.
//
// A deposit that is not dispatchable (terminal, or currently submitted) is
// not an error: another worker or a prior run already carried it forward.
func (t *Task) Execute(ctx context.Context, depositID string) error {
	start := time.Now()

	claim := store.PerformCritical[model.Deposit](ctx, t.client, depositID, store.Critical[model.Deposit]{
		Precondition: func(d *model.Deposit) bool { return d.DepositStatus.Dispatchable() },
		Mutation: func(d *model.Deposit) {
			d.StatusMessage = ""
			d.UpdatedAt = time.Now().UTC()
		},
		Postcondition: func(d *model.Deposit) bool { return d.DepositStatus.Dispatchable() },
	})
	if claim.Err != nil {
		return &DepositError{DepositID: depositID, Err: fmt.Errorf("claim: %w", claim.Err)}
	}
	if !claim.Success {
		logger.Debug("deposit not dispatchable, skipping", "deposit", depositID)
		observeDeposit(t.metrics, "skipped", time.Since(start))
		return nil
	}
	dep := claim.Record

	outcome, err := t.run(ctx, dep)
	if err != nil {
		t.fail(ctx, depositID, err)
		observeDeposit(t.metrics, "failed", time.Since(start))
		return &DepositError{DepositID: depositID, Err: err}
	}
	observeDeposit(t.metrics, outcome, time.Since(start))
	return nil
}

func (t *Task) run(ctx context.Context, dep *model.Deposit) (string, error) {
	sub, err := store.Get[model.Submission](ctx, t.client, dep.Submission)
	if err != nil {
		return "", fmt.Errorf("read submission %q: %w", dep.Submission, err)
	}
	repo, err := store.Get[model.Repository](ctx, t.client, dep.Repository)
	if err != nil {
		return "", fmt.Errorf("read repository %q: %w", dep.Repository, err)
	}

	cfg, err := t.configs.RepositoryConfig(repo.RepositoryKey)
	if err != nil {
		return "", fmt.Errorf("resolve repository %q: %w", repo.RepositoryKey, err)
	}

	assembler, err := t.registry.Lookup(cfg.Assembly.SpecURI)
	if err != nil {
		return "", err
	}
	stream, err := assembler.Assemble(ctx, sub, cfg.Assembly)
	if err != nil {
		return "", fmt.Errorf("assemble package: %w", err)
	}

	tr, ok := t.transports[cfg.Protocol]
	if !ok {
		return "", fmt.Errorf("no transport bound for protocol %q", cfg.Protocol)
	}
	sess, err := tr.Open(ctx, cfg.Hints)
	if err != nil {
		return "", fmt.Errorf("open %s session: %w", cfg.Protocol, err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			logger.Warn("transport session close failed", "deposit", dep.GetID(), "error", cerr)
		}
	}()

	sendStart := time.Now()
	resp, err := sess.Send(ctx, stream)
	observeTransfer(t.metrics, cfg.Protocol, time.Since(sendStart), err)
	if err != nil {
		return "", fmt.Errorf("transmit package: %w", err)
	}

	if resp.StatusRef != "" {
		return "submitted", t.recordSubmitted(ctx, dep.GetID(), resp.StatusRef)
	}
	return "accepted", t.recordAccepted(ctx, dep, resp)
}

// recordSubmitted parks the deposit in the submitted state; the archive's
// status document decides acceptance later.
func (t *Task) recordSubmitted(ctx context.Context, depositID, statusRef string) error {
	res := store.PerformCritical[model.Deposit](ctx, t.client, depositID, store.Critical[model.Deposit]{
		Precondition: func(d *model.Deposit) bool { return !d.DepositStatus.Terminal() },
		Mutation: func(d *model.Deposit) {
			d.DepositStatus = model.DepositSubmitted
			d.DepositStatusRef = statusRef
			d.UpdatedAt = time.Now().UTC()
		},
	})
	if res.Err != nil {
		return fmt.Errorf("record submitted: %w", res.Err)
	}
	if !res.Success {
		return fmt.Errorf("record submitted: deposit reached a terminal state concurrently")
	}

	logger.Info("deposit submitted, awaiting archive decision",
		"deposit", depositID, "statusRef", statusRef)
	if t.onSubmitted != nil {
		t.onSubmitted(depositID)
	}
	return nil
}

// recordAccepted closes the loop for protocols without a status document:
// physical success is the archive's final answer, so the deposit goes
// straight to accepted with a repository copy as evidence of custody.
func (t *Task) recordAccepted(ctx context.Context, dep *model.Deposit, resp *transport.Response) error {
	copyRec := &model.RepositoryCopy{
		Submission:  dep.Submission,
		Repository:  dep.Repository,
		CopyStatus:  model.CopyAccepted,
		ExternalIDs: resp.ExternalIDs,
		AccessURL:   resp.AccessURL,
	}
	if _, err := t.client.Create(ctx, copyRec); err != nil {
		return fmt.Errorf("create repository copy: %w", err)
	}

	res := store.PerformCritical[model.Deposit](ctx, t.client, dep.GetID(), store.Critical[model.Deposit]{
		Precondition: func(d *model.Deposit) bool { return !d.DepositStatus.Terminal() },
		Mutation: func(d *model.Deposit) {
			d.DepositStatus = model.DepositAccepted
			d.UpdatedAt = time.Now().UTC()
		},
	})
	if res.Err != nil {
		return fmt.Errorf("record accepted: %w", res.Err)
	}
	if !res.Success {
		return fmt.Errorf("record accepted: deposit reached a terminal state concurrently")
	}

	logger.Info("deposit accepted", "deposit", dep.GetID(), "externalIds", resp.ExternalIDs)
	return nil
}

// fail parks the deposit in the failed state with the cause chain. Failed is
// remediable: an operator or the retry endpoint can re-arm it.
func (t *Task) fail(ctx context.Context, depositID string, cause error) {
	res := store.PerformCritical[model.Deposit](ctx, t.client, depositID, store.Critical[model.Deposit]{
		Precondition: func(d *model.Deposit) bool { return !d.DepositStatus.Terminal() },
		Mutation: func(d *model.Deposit) {
			d.DepositStatus = model.DepositFailed
			d.StatusMessage = cause.Error()
			d.UpdatedAt = time.Now().UTC()
		},
	})
	if res.Err != nil {
		logger.Error("could not mark deposit failed", "deposit", depositID, "error", res.Err)
	}
}
