// Package storetest provides the conformance suite every record-store
// backend must pass. Backend tests call Run with a factory that opens a
// fresh, empty store.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/depositd/pkg/model"
	"github.com/marmos91/depositd/pkg/store"
)

// Factory opens a fresh store for one subtest. Cleanup is registered on t.
type Factory func(t *testing.T) store.Client

// Run exercises the full client contract against the backend under test.
func Run(t *testing.T, open Factory) {
	t.Run("CreateAssignsIDAndVersion", func(t *testing.T) { testCreate(t, open(t)) })
	t.Run("CreateKeepsCallerID", func(t *testing.T) { testCreateWithID(t, open(t)) })
	t.Run("ReadRoundTrip", func(t *testing.T) { testReadRoundTrip(t, open(t)) })
	t.Run("ReadMissing", func(t *testing.T) { testReadMissing(t, open(t)) })
	t.Run("ReadWrongKind", func(t *testing.T) { testReadWrongKind(t, open(t)) })
	t.Run("UpdateAdvancesVersion", func(t *testing.T) { testUpdate(t, open(t)) })
	t.Run("UpdateStaleVersionConflicts", func(t *testing.T) { testUpdateConflict(t, open(t)) })
	t.Run("ConcurrentUpdatesLoseAtMostAllButOne", func(t *testing.T) { testConcurrentUpdates(t, open(t)) })
	t.Run("FindByAttribute", func(t *testing.T) { testFindByAttribute(t, open(t)) })
	t.Run("FindByAttributeAfterUpdate", func(t *testing.T) { testFindAfterUpdate(t, open(t)) })
	t.Run("WaitIndexed", func(t *testing.T) { testWaitIndexed(t, open(t)) })
	t.Run("HealthCheck", func(t *testing.T) { testHealthCheck(t, open(t)) })
}

func testCreate(t *testing.T, c store.Client) {
	ctx := context.Background()

	dep := &model.Deposit{Submission: "sub-1", Repository: "repo-1"}
	id, err := c.Create(ctx, dep)
	require.NoError(t, err)

	assert.NotEmpty(t, id)
	assert.Equal(t, id, dep.GetID())
	assert.Equal(t, int64(1), dep.GetVersion())
}

func testCreateWithID(t *testing.T, c store.Client) {
	ctx := context.Background()

	repo := &model.Repository{RepositoryKey: "jscholarship"}
	repo.SetID("repo-fixed")

	id, err := c.Create(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, "repo-fixed", id)
}

func testReadRoundTrip(t *testing.T, c store.Client) {
	ctx := context.Background()

	want := &model.Deposit{
		Submission:       "sub-1",
		Repository:       "repo-1",
		DepositStatus:    model.DepositSubmitted,
		DepositStatusRef: "https://archive.example.org/statement/1",
	}
	id, err := c.Create(ctx, want)
	require.NoError(t, err)

	got, err := store.Get[model.Deposit](ctx, c, id)
	require.NoError(t, err)

	assert.Equal(t, id, got.GetID())
	assert.Equal(t, want.Submission, got.Submission)
	assert.Equal(t, want.Repository, got.Repository)
	assert.Equal(t, model.DepositSubmitted, got.DepositStatus)
	assert.Equal(t, want.DepositStatusRef, got.DepositStatusRef)
	assert.Equal(t, int64(1), got.GetVersion())
}

func testReadMissing(t *testing.T, c store.Client) {
	_, err := store.Get[model.Deposit](context.Background(), c, "no-such-id")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testReadWrongKind(t *testing.T, c store.Client) {
	ctx := context.Background()

	id, err := c.Create(ctx, &model.Repository{RepositoryKey: "pubmed"})
	require.NoError(t, err)

	_, err = store.Get[model.Deposit](ctx, c, id)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testUpdate(t *testing.T, c store.Client) {
	ctx := context.Background()

	dep := &model.Deposit{Submission: "sub-1", Repository: "repo-1"}
	id, err := c.Create(ctx, dep)
	require.NoError(t, err)

	dep.DepositStatus = model.DepositSubmitted
	require.NoError(t, c.Update(ctx, dep))
	assert.Equal(t, int64(2), dep.GetVersion())

	got, err := store.Get[model.Deposit](ctx, c, id)
	require.NoError(t, err)
	assert.Equal(t, model.DepositSubmitted, got.DepositStatus)
	assert.Equal(t, int64(2), got.GetVersion())
}

func testUpdateConflict(t *testing.T, c store.Client) {
	ctx := context.Background()

	dep := &model.Deposit{Submission: "sub-1", Repository: "repo-1"}
	id, err := c.Create(ctx, dep)
	require.NoError(t, err)

	// Two readers observe version 1.
	first, err := store.Get[model.Deposit](ctx, c, id)
	require.NoError(t, err)
	second, err := store.Get[model.Deposit](ctx, c, id)
	require.NoError(t, err)

	first.DepositStatus = model.DepositSubmitted
	require.NoError(t, c.Update(ctx, first))

	second.DepositStatus = model.DepositFailed
	err = c.Update(ctx, second)
	assert.ErrorIs(t, err, store.ErrConflict)

	// The losing write must not have landed.
	got, err := store.Get[model.Deposit](ctx, c, id)
	require.NoError(t, err)
	assert.Equal(t, model.DepositSubmitted, got.DepositStatus)
}

func testConcurrentUpdates(t *testing.T, c store.Client) {
	ctx := context.Background()

	dep := &model.Deposit{Submission: "sub-1", Repository: "repo-1"}
	id, err := c.Create(ctx, dep)
	require.NoError(t, err)

	// One observation fanned out to every writer: all updates carry the
	// same version, so exactly one can win.
	base, err := store.Get[model.Deposit](ctx, c, id)
	require.NoError(t, err)

	const writers = 8
	var wg sync.WaitGroup
	results := make([]error, writers)

	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d := *base
			d.StatusMessage = fmt.Sprintf("writer-%d", i)
			results[i] = c.Update(ctx, &d)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, store.ErrConflict)
		}
	}
	assert.Equal(t, 1, succeeded)
}

func testFindByAttribute(t *testing.T, c store.Client) {
	ctx := context.Background()

	d1 := &model.Deposit{Submission: "sub-1", Repository: "repo-1"}
	d2 := &model.Deposit{Submission: "sub-1", Repository: "repo-2"}
	d3 := &model.Deposit{Submission: "sub-2", Repository: "repo-1"}

	id1, err := c.Create(ctx, d1)
	require.NoError(t, err)
	id2, err := c.Create(ctx, d2)
	require.NoError(t, err)
	_, err = c.Create(ctx, d3)
	require.NoError(t, err)

	ids, err := c.FindByAttribute(ctx, model.KindDeposit, "submission", "sub-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{id1, id2}, ids)

	none, err := c.FindByAttribute(ctx, model.KindDeposit, "submission", "sub-9")
	require.NoError(t, err)
	assert.Empty(t, none)

	// Kind scoping: a submission record with a matching field must not leak
	// into deposit results.
	sub := &model.Submission{Submitted: true}
	sub.SetID("sub-1")
	_, err = c.Create(ctx, sub)
	require.NoError(t, err)

	ids, err = c.FindByAttribute(ctx, model.KindDeposit, "id", "sub-1")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func testFindAfterUpdate(t *testing.T, c store.Client) {
	ctx := context.Background()

	dep := &model.Deposit{Submission: "sub-1", Repository: "repo-1"}
	id, err := c.Create(ctx, dep)
	require.NoError(t, err)

	dep.DepositStatus = model.DepositAccepted
	require.NoError(t, c.Update(ctx, dep))

	ids, err := c.FindByAttribute(ctx, model.KindDeposit, "depositStatus", "accepted")
	require.NoError(t, err)
	assert.Contains(t, ids, id)

	// The pre-update value must no longer match.
	stale, err := c.FindByAttribute(ctx, model.KindDeposit, "depositStatus", "submitted")
	require.NoError(t, err)
	assert.NotContains(t, stale, id)
}

func testWaitIndexed(t *testing.T, c store.Client) {
	ctx := context.Background()

	dep := &model.Deposit{Submission: "sub-1", Repository: "repo-1"}
	id, err := c.Create(ctx, dep)
	require.NoError(t, err)

	require.NoError(t, store.WaitIndexed(ctx, c, model.KindDeposit, id))
}

func testHealthCheck(t *testing.T, c store.Client) {
	assert.NoError(t, c.HealthCheck(context.Background()))
}
