package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/depositd/pkg/model"
)

func TestAttributes_ScalarsOnly(t *testing.T) {
	dep := &model.Deposit{
		Submission:    "sub-1",
		Repository:    "repo-1",
		DepositStatus: model.DepositSubmitted,
	}
	dep.SetID("dep-1")

	attrs, err := Attributes(dep)
	require.NoError(t, err)

	assert.Equal(t, "dep-1", attrs["id"])
	assert.Equal(t, "sub-1", attrs["submission"])
	assert.Equal(t, "repo-1", attrs["repository"])
	assert.Equal(t, "submitted", attrs["depositStatus"])
}

func TestAttributes_BoolAndCollections(t *testing.T) {
	sub := &model.Submission{
		Submitted:    true,
		Repositories: []string{"repo-1"},
		Files:        []model.File{{Name: "a.pdf", Location: "file:///a.pdf"}},
	}
	sub.SetID("sub-1")

	attrs, err := Attributes(sub)
	require.NoError(t, err)

	assert.Equal(t, "true", attrs["submitted"])
	assert.NotContains(t, attrs, "repositories")
	assert.NotContains(t, attrs, "files")
}

// indexStub answers FindByAttribute empty a fixed number of times before the
// record becomes visible.
type indexStub struct {
	Client
	missesLeft int
	calls      int
}

func (s *indexStub) FindByAttribute(ctx context.Context, kind model.Kind, field, value string) ([]string, error) {
	s.calls++
	if s.missesLeft > 0 {
		s.missesLeft--
		return nil, nil
	}
	return []string{value}, nil
}

func TestWaitIndexed_RetriesUntilVisible(t *testing.T) {
	stub := &indexStub{missesLeft: 2}

	start := time.Now()
	err := WaitIndexed(context.Background(), stub, model.KindDeposit, "dep-1")
	require.NoError(t, err)

	assert.Equal(t, 3, stub.calls)
	// Two misses mean two geometric waits: 1s then 1.5s.
	assert.GreaterOrEqual(t, time.Since(start), 2*time.Second)
}

func TestWaitIndexed_ContextCancel(t *testing.T) {
	stub := &indexStub{missesLeft: 1 << 30}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := WaitIndexed(ctx, stub, model.KindDeposit, "dep-1")
	assert.Error(t, err)
}
