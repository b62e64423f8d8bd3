package ingress_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/depositd/pkg/ingress"
	"github.com/marmos91/depositd/pkg/model"
	"github.com/marmos91/depositd/pkg/store/memory"
)

type recordingDispatcher struct {
	mu  sync.Mutex
	ids []string
}

func (d *recordingDispatcher) Dispatch(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, id)
	return nil
}

func (d *recordingDispatcher) dispatched() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.ids...)
}

type recordingPoller struct {
	mu  sync.Mutex
	ids []string
}

func (p *recordingPoller) Enqueue(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, id)
	return true
}

func (p *recordingPoller) enqueued() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ids...)
}

func TestPolicyFilters(t *testing.T) {
	p := ingress.DefaultPolicy()

	assert.True(t, p.Accepts(ingress.Event{Kind: ingress.EventCreated, EntityType: model.KindSubmission}))
	assert.True(t, p.Accepts(ingress.Event{Kind: ingress.EventModified, EntityType: model.KindDeposit}))
	assert.False(t, p.Accepts(ingress.Event{Kind: ingress.EventModified, EntityType: model.KindRepository}))
	assert.False(t, p.Accepts(ingress.Event{Kind: "deleted", EntityType: model.KindSubmission}))
}

func TestSubmissionEventsReachDispatcher(t *testing.T) {
	client := memory.New()
	defer func() { _ = client.Close() }()

	dispatcher := &recordingDispatcher{}
	poller := &recordingPoller{}
	ing := ingress.New(client, ingress.DefaultPolicy(), dispatcher, poller, ingress.Config{}, nil)
	ing.Start(context.Background())
	defer ing.Stop(2 * time.Second)

	require.True(t, ing.Notify(ingress.Event{
		ID: "sub-1", Kind: ingress.EventCreated, EntityType: model.KindSubmission,
	}))

	require.Eventually(t, func() bool {
		return len(dispatcher.dispatched()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"sub-1"}, dispatcher.dispatched())
	assert.Empty(t, poller.enqueued())
}

func TestSubmittedDepositEventsArmThePoller(t *testing.T) {
	client := memory.New()
	defer func() { _ = client.Close() }()
	ctx := context.Background()

	depID, err := client.Create(ctx, &model.Deposit{
		Submission:       "sub-1",
		Repository:       "repo-1",
		DepositStatus:    model.DepositSubmitted,
		DepositStatusRef: "http://archive.example/statement/1",
	})
	require.NoError(t, err)

	// A deposit without a status reference is acknowledged without work.
	idleID, err := client.Create(ctx, &model.Deposit{
		Submission: "sub-1",
		Repository: "repo-2",
	})
	require.NoError(t, err)

	dispatcher := &recordingDispatcher{}
	poller := &recordingPoller{}
	ing := ingress.New(client, ingress.DefaultPolicy(), dispatcher, poller, ingress.Config{}, nil)
	ing.Start(ctx)
	defer ing.Stop(2 * time.Second)

	require.True(t, ing.Notify(ingress.Event{ID: depID, Kind: ingress.EventModified, EntityType: model.KindDeposit}))
	require.True(t, ing.Notify(ingress.Event{ID: idleID, Kind: ingress.EventModified, EntityType: model.KindDeposit}))

	require.Eventually(t, func() bool {
		return len(poller.enqueued()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{depID}, poller.enqueued())
}

func TestNotifyRejectsFilteredEvents(t *testing.T) {
	client := memory.New()
	defer func() { _ = client.Close() }()

	ing := ingress.New(client, ingress.DefaultPolicy(), &recordingDispatcher{}, &recordingPoller{}, ingress.Config{}, nil)
	assert.False(t, ing.Notify(ingress.Event{
		ID: "r-1", Kind: ingress.EventCreated, EntityType: model.KindRepository,
	}))
}

func TestPollSourceReplaysUnstartedSubmissions(t *testing.T) {
	client := memory.New()
	defer func() { _ = client.Close() }()
	ctx := context.Background()

	fresh, err := client.Create(ctx, &model.Submission{Submitted: true})
	require.NoError(t, err)
	_, err = client.Create(ctx, &model.Submission{
		Submitted:               true,
		AggregatedDepositStatus: model.AggregatedInProgress,
	})
	require.NoError(t, err)
	_, err = client.Create(ctx, &model.Submission{Submitted: false})
	require.NoError(t, err)

	dispatcher := &recordingDispatcher{}
	ing := ingress.New(client, ingress.DefaultPolicy(), dispatcher, &recordingPoller{}, ingress.Config{}, nil)
	ing.Start(ctx)
	defer ing.Stop(2 * time.Second)

	src := ingress.NewPollSource(client, ing, ingress.PollSourceConfig{Interval: time.Hour})
	require.NoError(t, src.Sweep(ctx))

	// Only the submitted, not-started submission is replayed.
	require.Eventually(t, func() bool {
		return len(dispatcher.dispatched()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{fresh}, dispatcher.dispatched())
}
