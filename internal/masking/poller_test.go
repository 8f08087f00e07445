package masking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snowflake-mask-report/pkg/types"
)

// scriptedClient answers status checks from a fixed script
type scriptedClient struct {
	script []types.JobStatus
	calls  int
}

func (c *scriptedClient) Submit(context.Context, []types.MaskEntry) (string, error) {
	return "", errors.New("not used")
}

func (c *scriptedClient) Status(_ context.Context, _ string) (types.JobStatus, error) {
	if c.calls >= len(c.script) {
		return types.JobStatus{}, errors.New("script exhausted")
	}
	s := c.script[c.calls]
	c.calls++
	return s, nil
}

func masked(row, col int, v string) types.MaskedResult {
	return types.MaskedResult{
		Attribute:   types.Attribute{Row: row, ColumnPosition: col},
		MaskedValue: &v,
	}
}

func newTestPoller(c types.MaskingClient, maxAttempts int, slept *[]time.Duration) *Poller {
	return NewPoller(c, PollerConfig{
		MaxAttempts: maxAttempts,
		Sleep: func(_ context.Context, d time.Duration) error {
			if slept != nil {
				*slept = append(*slept, d)
			}
			return nil
		},
	})
}

func TestAwait_PendingThenSuccessMatchesImmediateSuccess(t *testing.T) {
	results := []types.MaskedResult{masked(0, 0, "a"), masked(0, 1, "b")}
	success := types.JobStatus{State: types.JobSuccess, Raw: "SUCCESS", Results: results}

	var slept []time.Duration
	delayed := &scriptedClient{script: []types.JobStatus{
		{State: types.JobPending, Raw: "PENDING"},
		{State: types.JobInProgress, Raw: "IN-PROGRESS"},
		success,
	}}
	got, err := newTestPoller(delayed, 0, &slept).Await(context.Background(), "trk")
	require.NoError(t, err)

	immediate := &scriptedClient{script: []types.JobStatus{success}}
	want, err := newTestPoller(immediate, 0, nil).Await(context.Background(), "trk")
	require.NoError(t, err)

	assert.Equal(t, want, got)
	assert.Equal(t, 3, delayed.calls)
	assert.Equal(t, []time.Duration{DefaultPollInterval, DefaultPollInterval}, slept)
}

func TestAwait_BlankIDSkipsService(t *testing.T) {
	c := &scriptedClient{}

	got, err := newTestPoller(c, 0, nil).Await(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
	assert.Zero(t, c.calls)
}

func TestAwait_SuccessWithoutResults(t *testing.T) {
	c := &scriptedClient{script: []types.JobStatus{{State: types.JobSuccess, Raw: "SUCCESS"}}}

	got, err := newTestPoller(c, 0, nil).Await(context.Background(), "trk")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAwait_Failed(t *testing.T) {
	c := &scriptedClient{script: []types.JobStatus{{State: types.JobFailed, Raw: "FAILED", Message: "quota exceeded"}}}

	_, err := newTestPoller(c, 0, nil).Await(context.Background(), "trk")
	require.Error(t, err)
	assert.Equal(t, types.KindPoll, types.KindOf(err))
	assert.Contains(t, err.Error(), "quota exceeded")

	c = &scriptedClient{script: []types.JobStatus{{State: types.JobFailed, Raw: "FAILED"}}}
	_, err = newTestPoller(c, 0, nil).Await(context.Background(), "trk")
	assert.Contains(t, err.Error(), "Unknown error")
}

func TestAwait_UnexpectedStatusIsNotRetried(t *testing.T) {
	c := &scriptedClient{script: []types.JobStatus{
		{State: types.JobUnknown, Raw: "CANCELLED"},
		{State: types.JobSuccess, Raw: "SUCCESS"},
	}}

	_, err := newTestPoller(c, 0, nil).Await(context.Background(), "trk")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 'CANCELLED'")
	assert.Equal(t, 1, c.calls)
}

func TestAwait_MaxAttempts(t *testing.T) {
	pending := types.JobStatus{State: types.JobPending, Raw: "PENDING"}
	c := &scriptedClient{script: []types.JobStatus{pending, pending, pending, pending}}

	_, err := newTestPoller(c, 3, nil).Await(context.Background(), "trk")
	require.Error(t, err)
	assert.Equal(t, types.KindPoll, types.KindOf(err))
	assert.Equal(t, 3, c.calls)
}

func TestAwait_ContextCancelledDuringWait(t *testing.T) {
	c := &scriptedClient{script: []types.JobStatus{{State: types.JobPending, Raw: "PENDING"}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPoller(c, PollerConfig{Interval: time.Hour})
	_, err := p.Await(ctx, "trk")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAwait_StatusErrorPropagates(t *testing.T) {
	c := &scriptedClient{}

	_, err := newTestPoller(c, 0, nil).Await(context.Background(), "trk")
	assert.EqualError(t, err, "script exhausted")
}
