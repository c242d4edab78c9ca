package workflow

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecCtx_Cancelled_ReflectsCallback(t *testing.T) {
	cancelled := false
	c := newExecCtx(context.Background(), nil, nil, func() bool { return cancelled }, nil)
	assert.False(t, c.Cancelled())
	cancelled = true
	assert.True(t, c.Cancelled())
}

func TestExecCtx_Cancelled_ReflectsParentContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := newExecCtx(ctx, nil, nil, nil, nil)
	assert.False(t, c.Cancelled())
	cancel()
	assert.True(t, c.Cancelled())
}

func TestExecCtx_NewUUID_ReturnsDistinctValues(t *testing.T) {
	c := newExecCtx(context.Background(), nil, nil, nil, nil)
	a := c.NewUUID()
	b := c.NewUUID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
}

func TestExecCtx_Sleep_ReturnsPromptlyForShortDuration(t *testing.T) {
	db := newTestWorkflowDB(t)
	h := newHistory(db, "wf-sleep", "run-sleep")
	c := newExecCtx(context.Background(), h, nil, nil, nil)

	start := time.Now()
	err := c.Sleep(10 * time.Millisecond)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestExecCtx_Sleep_CancelledBeforeTimerReturnsContextCanceled(t *testing.T) {
	c := newExecCtx(context.Background(), nil, nil, func() bool { return true }, nil)
	err := c.Sleep(time.Hour)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecCtx_ExecuteActivity_RecordsScheduledAndCompleted(t *testing.T) {
	db := newTestWorkflowDB(t)
	h := newHistory(db, "wf-activity", "run-activity")
	d := newDispatcher(Registry{
		"echo": func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
			return input, nil
		},
	}, fastRetry(), Timeouts{})
	c := newExecCtx(context.Background(), h, d, nil, nil)

	out, err := c.ExecuteActivity("echo", map[string]any{"x": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1}`, string(out))

	state, err := Replay(context.Background(), db, "wf-activity", "run-activity")
	require.NoError(t, err)
	assert.Equal(t, []string{"echo"}, state.CompletedActivity)
	assert.Empty(t, state.InFlightActivity)
	require.Len(t, state.CompletedActivities, 1)
	assert.Equal(t, "echo", state.CompletedActivities[0].Name)
	assert.JSONEq(t, `{"x":1}`, string(state.CompletedActivities[0].Output))
}

func TestExecCtx_ExecuteActivity_CancelledShortCircuits(t *testing.T) {
	c := newExecCtx(context.Background(), nil, nil, func() bool { return true }, nil)
	_, err := c.ExecuteActivity("whatever", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecCtx_ExecuteActivity_ReplaysRecordedOutputWithoutRedispatch(t *testing.T) {
	db := newTestWorkflowDB(t)
	h := newHistory(db, "wf-replay", "run-replay")
	calls := 0
	d := newDispatcher(Registry{
		"charge": func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
			calls++
			return []byte(`{"charged":true}`), nil
		},
	}, fastRetry(), Timeouts{})
	replay := []CompletedActivity{{Name: "charge", Output: []byte(`{"charged":true,"replayed":true}`)}}
	c := newExecCtx(context.Background(), h, d, nil, replay)

	out, err := c.ExecuteActivity("charge", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"charged":true,"replayed":true}`, string(out))
	assert.Equal(t, 0, calls, "replayed activity must not redispatch to the live implementation")
	assert.Equal(t, 1, c.replayIdx)

	out, err = c.ExecuteActivity("charge", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"charged":true}`, string(out))
	assert.Equal(t, 1, calls, "the call past the end of replay history dispatches live")
}

func TestExecCtx_ExecuteActivity_ReplayMismatchFallsThroughToLiveDispatch(t *testing.T) {
	db := newTestWorkflowDB(t)
	h := newHistory(db, "wf-mismatch", "run-mismatch")
	calls := 0
	d := newDispatcher(Registry{
		"b": func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
			calls++
			return []byte(`{}`), nil
		},
	}, fastRetry(), Timeouts{})
	replay := []CompletedActivity{{Name: "a", Output: []byte(`{}`)}}
	c := newExecCtx(context.Background(), h, d, nil, replay)

	out, err := c.ExecuteActivity("b", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(out))
	assert.Equal(t, 1, calls, "a replay-position mismatch must dispatch the call live rather than returning the wrong recorded result")
}

func TestExecCtx_ExecuteActivity_ReplaysFailedOccurrence(t *testing.T) {
	replay := []CompletedActivity{{Name: "charge", Failed: true, Error: "card declined"}}
	c := newExecCtx(context.Background(), nil, nil, nil, replay)

	_, err := c.ExecuteActivity("charge", nil)
	require.Error(t, err)
	assert.Equal(t, "card declined", err.Error())
}
