package deposit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/depositd/pkg/deposit"
	"github.com/marmos91/depositd/pkg/model"
	"github.com/marmos91/depositd/pkg/packaging"
	"github.com/marmos91/depositd/pkg/store"
	"github.com/marmos91/depositd/pkg/store/memory"
	"github.com/marmos91/depositd/pkg/transport"
)

const testSpecURI = "urn:test:packaging"

// stubAssembler emits a fixed single-entry package.
type stubAssembler struct{}

func (stubAssembler) Assemble(_ context.Context, sub *model.Submission, opts packaging.Options) (packaging.PackageStream, error) {
	return packaging.NewStream("pkg-"+sub.GetID()+".zip", opts, []packaging.Source{
		packaging.BytesSource("a.txt", "text/plain", []byte("payload")),
	}), nil
}

// fakeTransport records sends and answers with a scripted response.
type fakeTransport struct {
	mu      sync.Mutex
	resp    *transport.Response
	sendErr error
	sends   int
}

func (f *fakeTransport) Open(context.Context, transport.Hints) (transport.Session, error) {
	return &fakeSession{t: f}, nil
}

func (f *fakeTransport) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends
}

type fakeSession struct{ t *fakeTransport }

func (s *fakeSession) Send(ctx context.Context, stream packaging.PackageStream) (*transport.Response, error) {
	s.t.mu.Lock()
	s.t.sends++
	s.t.mu.Unlock()
	if s.t.sendErr != nil {
		return nil, s.t.sendErr
	}
	return s.t.resp, nil
}

func (s *fakeSession) Close() error { return nil }

type staticConfigs map[string]deposit.RepositoryConfig

func (c staticConfigs) RepositoryConfig(key string) (deposit.RepositoryConfig, error) {
	cfg, ok := c[key]
	if !ok {
		return deposit.RepositoryConfig{}, errors.New("unknown repository key: " + key)
	}
	return cfg, nil
}

type fixture struct {
	client    *memory.Store
	transport *fakeTransport
	task      *deposit.Task

	submissionID string
	repositoryID string
}

func newFixture(t *testing.T, resp *transport.Response, sendErr error) *fixture {
	t.Helper()
	client := memory.New()
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	repoID, err := client.Create(ctx, &model.Repository{Name: "Archive", RepositoryKey: "archive"})
	require.NoError(t, err)
	subID, err := client.Create(ctx, &model.Submission{
		Submitted:        true,
		SubmissionStatus: model.SubmissionSubmitted,
		Repositories:     []string{repoID},
	})
	require.NoError(t, err)

	registry := packaging.NewRegistry()
	registry.Register(testSpecURI, stubAssembler{})

	ft := &fakeTransport{resp: resp, sendErr: sendErr}
	task := deposit.NewTask(client, registry,
		map[string]transport.Transport{"fake": ft},
		staticConfigs{"archive": {
			Protocol: "fake",
			Assembly: packaging.Options{SpecURI: testSpecURI, Archive: packaging.ArchiveZIP},
		}},
	)

	return &fixture{
		client:       client,
		transport:    ft,
		task:         task,
		submissionID: subID,
		repositoryID: repoID,
	}
}

func (f *fixture) createDeposit(t *testing.T) string {
	t.Helper()
	id, err := f.client.Create(context.Background(), &model.Deposit{
		Submission: f.submissionID,
		Repository: f.repositoryID,
	})
	require.NoError(t, err)
	return id
}

func TestExecuteSubmittedWhenStatusRefIssued(t *testing.T) {
	f := newFixture(t, &transport.Response{
		Accepted:  true,
		StatusRef: "http://archive.example/statement/1",
	}, nil)
	depID := f.createDeposit(t)

	var polled []string
	f.task.OnSubmitted(func(id string) { polled = append(polled, id) })

	require.NoError(t, f.task.Execute(context.Background(), depID))

	dep, err := store.Get[model.Deposit](context.Background(), f.client, depID)
	require.NoError(t, err)
	assert.Equal(t, model.DepositSubmitted, dep.DepositStatus)
	assert.Equal(t, "http://archive.example/statement/1", dep.DepositStatusRef)
	assert.Equal(t, []string{depID}, polled)
}

func TestExecuteAcceptedWithRepositoryCopyWhenNoStatusRef(t *testing.T) {
	f := newFixture(t, &transport.Response{
		Accepted:    true,
		ExternalIDs: []string{"ftp://host/deposits/pkg.zip"},
		AccessURL:   "ftp://host/deposits/pkg.zip",
	}, nil)
	depID := f.createDeposit(t)

	require.NoError(t, f.task.Execute(context.Background(), depID))

	ctx := context.Background()
	dep, err := store.Get[model.Deposit](ctx, f.client, depID)
	require.NoError(t, err)
	assert.Equal(t, model.DepositAccepted, dep.DepositStatus)
	assert.Empty(t, dep.DepositStatusRef)

	ids, err := f.client.FindByAttribute(ctx, model.KindRepositoryCopy, "submission", f.submissionID)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	copyRec, err := store.Get[model.RepositoryCopy](ctx, f.client, ids[0])
	require.NoError(t, err)
	assert.Equal(t, model.CopyAccepted, copyRec.CopyStatus)
	assert.Equal(t, []string{"ftp://host/deposits/pkg.zip"}, copyRec.ExternalIDs)
}

func TestExecuteFailureMarksDepositFailed(t *testing.T) {
	boom := errors.New("connection refused")
	f := newFixture(t, nil, boom)
	depID := f.createDeposit(t)

	err := f.task.Execute(context.Background(), depID)
	require.Error(t, err)

	var depErr *deposit.DepositError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, depID, depErr.DepositID)

	dep, err := store.Get[model.Deposit](context.Background(), f.client, depID)
	require.NoError(t, err)
	assert.Equal(t, model.DepositFailed, dep.DepositStatus)
	assert.Contains(t, dep.StatusMessage, "connection refused")
}

func TestExecuteSkipsTerminalDeposit(t *testing.T) {
	f := newFixture(t, &transport.Response{Accepted: true}, nil)
	depID := f.createDeposit(t)

	ctx := context.Background()
	dep, err := store.Get[model.Deposit](ctx, f.client, depID)
	require.NoError(t, err)
	dep.DepositStatus = model.DepositAccepted
	require.NoError(t, f.client.Update(ctx, dep))

	require.NoError(t, f.task.Execute(ctx, depID))
	assert.Zero(t, f.transport.sendCount(), "terminal deposits must not be re-sent")
}

func TestExecuteRearmsFailedDeposit(t *testing.T) {
	f := newFixture(t, &transport.Response{
		Accepted:    true,
		ExternalIDs: []string{"file:///drop/pkg.zip"},
	}, nil)
	depID := f.createDeposit(t)

	ctx := context.Background()
	dep, err := store.Get[model.Deposit](ctx, f.client, depID)
	require.NoError(t, err)
	dep.DepositStatus = model.DepositFailed
	dep.StatusMessage = "previous attempt"
	require.NoError(t, f.client.Update(ctx, dep))

	require.NoError(t, f.task.Execute(ctx, depID))

	dep, err = store.Get[model.Deposit](ctx, f.client, depID)
	require.NoError(t, err)
	assert.Equal(t, model.DepositAccepted, dep.DepositStatus)
	assert.Empty(t, dep.StatusMessage)
}

func TestDispatchCreatesOneDepositPerRepository(t *testing.T) {
	f := newFixture(t, &transport.Response{Accepted: true}, nil)
	ctx := context.Background()

	repo2, err := f.client.Create(ctx, &model.Repository{Name: "Second", RepositoryKey: "archive"})
	require.NoError(t, err)
	sub, err := store.Get[model.Submission](ctx, f.client, f.submissionID)
	require.NoError(t, err)
	sub.Repositories = append(sub.Repositories, repo2)
	require.NoError(t, f.client.Update(ctx, sub))

	pool := deposit.NewPool(f.task, deposit.PoolConfig{Workers: 1, QueueSize: 8}, nil)
	dispatcher := deposit.NewDispatcher(f.client, pool)

	require.NoError(t, dispatcher.Dispatch(ctx, f.submissionID))

	ids, err := f.client.FindByAttribute(ctx, model.KindDeposit, "submission", f.submissionID)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	// Dispatching again must not duplicate: pending deposits are
	// rescheduled, not recreated.
	require.NoError(t, dispatcher.Dispatch(ctx, f.submissionID))
	ids, err = f.client.FindByAttribute(ctx, model.KindDeposit, "submission", f.submissionID)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

// slowFindStore widens the find-then-create window by delaying attribute
// lookups.
type slowFindStore struct {
	store.Client
	delay time.Duration
}

func (s *slowFindStore) FindByAttribute(ctx context.Context, kind model.Kind, field, value string) ([]string, error) {
	time.Sleep(s.delay)
	return s.Client.FindByAttribute(ctx, kind, field, value)
}

func TestDispatchConcurrentlyCreatesSingleDeposit(t *testing.T) {
	f := newFixture(t, &transport.Response{Accepted: true}, nil)
	ctx := context.Background()

	// Both dispatchers observe "no deposit yet" before either creates one;
	// the submission's version serializes them to a single create.
	slow := &slowFindStore{Client: f.client, delay: 50 * time.Millisecond}
	pool := deposit.NewPool(f.task, deposit.PoolConfig{Workers: 1, QueueSize: 8}, nil)
	dispatcher := deposit.NewDispatcher(slow, pool)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = dispatcher.Dispatch(ctx, f.submissionID)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	ids, err := f.client.FindByAttribute(ctx, model.KindDeposit, "submission", f.submissionID)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestDispatchIgnoresUnsubmitted(t *testing.T) {
	f := newFixture(t, &transport.Response{Accepted: true}, nil)
	ctx := context.Background()

	sub, err := store.Get[model.Submission](ctx, f.client, f.submissionID)
	require.NoError(t, err)
	sub.Submitted = false
	require.NoError(t, f.client.Update(ctx, sub))

	pool := deposit.NewPool(f.task, deposit.PoolConfig{}, nil)
	dispatcher := deposit.NewDispatcher(f.client, pool)
	require.NoError(t, dispatcher.Dispatch(ctx, f.submissionID))

	ids, err := f.client.FindByAttribute(ctx, model.KindDeposit, "submission", f.submissionID)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestPoolProcessesQueuedDeposits(t *testing.T) {
	f := newFixture(t, &transport.Response{
		Accepted:    true,
		ExternalIDs: []string{"file:///drop/pkg.zip"},
	}, nil)
	depID := f.createDeposit(t)

	pool := deposit.NewPool(f.task, deposit.PoolConfig{Workers: 2, QueueSize: 8}, nil)
	pool.Start(context.Background())
	require.True(t, pool.Enqueue(depID))

	require.Eventually(t, func() bool {
		dep, err := store.Get[model.Deposit](context.Background(), f.client, depID)
		return err == nil && dep.DepositStatus == model.DepositAccepted
	}, 5*time.Second, 10*time.Millisecond)

	pool.Stop(2 * time.Second)
	assert.Equal(t, 1, pool.Stats().Completed)
}

// blockingExecutor parks each task until released, so a test can observe the
// pool with a deposit mid-flight.
type blockingExecutor struct {
	started chan string
	release chan struct{}
}

func (e *blockingExecutor) Execute(_ context.Context, depositID string) error {
	e.started <- depositID
	<-e.release
	return nil
}

func TestPoolRefusesDuplicateInFlightDeposit(t *testing.T) {
	exec := &blockingExecutor{started: make(chan string, 2), release: make(chan struct{})}
	pool := deposit.NewPool(exec, deposit.PoolConfig{Workers: 2, QueueSize: 8}, nil)
	pool.Start(context.Background())
	defer pool.Stop(2 * time.Second)

	require.True(t, pool.Enqueue("dep-1"))
	<-exec.started

	// Mid-flight: a second schedule of the same deposit must not reach a
	// second worker.
	assert.False(t, pool.Enqueue("dep-1"))
	close(exec.release)

	require.Eventually(t, func() bool {
		return pool.Stats().Completed == 1
	}, 5*time.Second, 10*time.Millisecond)

	// Finished: the deposit may be scheduled again.
	assert.True(t, pool.Enqueue("dep-1"))
}

func TestErrorHandlerFailsDeposit(t *testing.T) {
	f := newFixture(t, nil, nil)
	depID := f.createDeposit(t)

	h := deposit.NewErrorHandler(f.client)
	h.Handle(context.Background(), &deposit.DepositError{DepositID: depID, Err: errors.New("boom")})

	dep, err := store.Get[model.Deposit](context.Background(), f.client, depID)
	require.NoError(t, err)
	assert.Equal(t, model.DepositFailed, dep.DepositStatus)
	assert.Contains(t, dep.StatusMessage, "boom")
}

func TestErrorHandlerFailsSubmission(t *testing.T) {
	f := newFixture(t, nil, nil)

	h := deposit.NewErrorHandler(f.client)
	h.Handle(context.Background(), &deposit.SubmissionError{SubmissionID: f.submissionID, Err: errors.New("boom")})

	sub, err := store.Get[model.Submission](context.Background(), f.client, f.submissionID)
	require.NoError(t, err)
	assert.Equal(t, model.AggregatedFailed, sub.AggregatedDepositStatus)
}

func TestErrorHandlerIgnoresUnattributedErrors(t *testing.T) {
	f := newFixture(t, nil, nil)
	depID := f.createDeposit(t)

	h := deposit.NewErrorHandler(f.client)
	h.Handle(context.Background(), errors.New("nothing to attribute"))

	dep, err := store.Get[model.Deposit](context.Background(), f.client, depID)
	require.NoError(t, err)
	assert.Equal(t, model.DepositNone, dep.DepositStatus)
}

func TestErrorHandlerDoesNotOverwriteTerminal(t *testing.T) {
	f := newFixture(t, nil, nil)
	depID := f.createDeposit(t)

	ctx := context.Background()
	dep, err := store.Get[model.Deposit](ctx, f.client, depID)
	require.NoError(t, err)
	dep.DepositStatus = model.DepositAccepted
	require.NoError(t, f.client.Update(ctx, dep))

	h := deposit.NewErrorHandler(f.client)
	h.Handle(ctx, &deposit.DepositError{DepositID: depID, Err: errors.New("late failure")})

	dep, err = store.Get[model.Deposit](ctx, f.client, depID)
	require.NoError(t, err)
	assert.Equal(t, model.DepositAccepted, dep.DepositStatus)
}
