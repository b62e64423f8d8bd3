package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepositStatus_Terminal(t *testing.T) {
	tests := []struct {
		status   DepositStatus
		terminal bool
	}{
		{DepositNone, false},
		{DepositSubmitted, false},
		{DepositFailed, false},
		{DepositAccepted, true},
		{DepositRejected, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.terminal, tt.status.Terminal(), "status %q", tt.status)
	}
}

func TestDepositStatus_Dispatchable(t *testing.T) {
	assert.True(t, DepositNone.Dispatchable())
	assert.True(t, DepositFailed.Dispatchable())
	assert.False(t, DepositSubmitted.Dispatchable())
	assert.False(t, DepositAccepted.Dispatchable())
	assert.False(t, DepositRejected.Dispatchable())
}

func TestAggregatedDepositStatus_Terminal(t *testing.T) {
	assert.True(t, AggregatedAccepted.Terminal())
	assert.True(t, AggregatedRejected.Terminal())
	assert.False(t, AggregatedNotStarted.Terminal())
	assert.False(t, AggregatedInProgress.Terminal())
	assert.False(t, AggregatedFailed.Terminal())
}

func TestNew_KnownKinds(t *testing.T) {
	for _, kind := range []Kind{KindSubmission, KindRepository, KindDeposit, KindRepositoryCopy} {
		rec, ok := New(kind)
		require.True(t, ok, "kind %q", kind)
		assert.Equal(t, kind, rec.Kind())
	}

	_, ok := New(Kind("Widget"))
	assert.False(t, ok)
}

func TestBase_IdentityAndVersion(t *testing.T) {
	d := &Deposit{}
	d.SetID("dep-1")
	d.SetVersion(3)

	assert.Equal(t, "dep-1", d.GetID())
	assert.Equal(t, int64(3), d.GetVersion())
}

func TestVersionNotSerialized(t *testing.T) {
	d := &Deposit{Submission: "sub-1", Repository: "repo-1"}
	d.SetID("dep-1")
	d.SetVersion(7)

	body, err := json.Marshal(d)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(body, &fields))
	assert.NotContains(t, fields, "Version")
	assert.NotContains(t, fields, "version")
	assert.Equal(t, "dep-1", fields["id"])
}

func TestSubmissionJSONRoundTrip(t *testing.T) {
	s := &Submission{
		Submitted:               true,
		SubmissionStatus:        SubmissionSubmitted,
		AggregatedDepositStatus: AggregatedNotStarted,
		Repositories:            []string{"repo-1", "repo-2"},
		Metadata:                json.RawMessage(`{"title":"On Things"}`),
		Files: []File{
			{Name: "article.pdf", Location: "https://files.example.org/article.pdf", MimeType: "application/pdf", Role: RoleManuscript},
		},
	}
	s.SetID("sub-1")

	body, err := json.Marshal(s)
	require.NoError(t, err)

	var got Submission
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, s.Repositories, got.Repositories)
	assert.Equal(t, s.Files, got.Files)
	assert.True(t, got.Submitted)
	assert.JSONEq(t, `{"title":"On Things"}`, string(got.Metadata))
}
