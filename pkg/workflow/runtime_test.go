package workflow

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogniflow/agentrt/pkg/database"
)

func testRetryPolicy() RetryPolicy {
	return RetryPolicy{InitialInterval: time.Millisecond, BackoffCoefficient: 1, MaxInterval: 5 * time.Millisecond, MaxAttempts: 2}
}

func testTimeouts() Timeouts {
	return Timeouts{ScheduleToStart: time.Second, StartToClose: 5 * time.Second, Heartbeat: time.Second}
}

type greetIn struct {
	Name string `json:"name"`
}

type greetOut struct {
	Greeting string `json:"greeting"`
}

func TestRuntime_StartAndRunOne_CompletesSuccessfully(t *testing.T) {
	db := newTestWorkflowDB(t)
	ctx := context.Background()

	activities := Registry{
		"greet": WrapActivity(func(ctx context.Context, in greetIn) (greetOut, error) {
			return greetOut{Greeting: "hello " + in.Name}, nil
		}),
	}
	rt := NewRuntime(db, activities, testRetryPolicy(), testTimeouts())

	require.NoError(t, rt.Register("greeter", func(wfCtx WorkflowCtx, input json.RawMessage) (json.RawMessage, error) {
		var in greetIn
		require.NoError(t, json.Unmarshal(input, &in))
		out, err := wfCtx.ExecuteActivity("greet", in)
		if err != nil {
			return nil, err
		}
		return out, nil
	}))

	runID, err := rt.Start(ctx, "wf-greet", "greeter", []byte(`{"name":"ada"}`))
	require.NoError(t, err)

	var exec database.WorkflowExecution
	require.NoError(t, db.Where("workflow_id = ? AND run_id = ?", "wf-greet", runID).First(&exec).Error)

	result := rt.runOne(ctx, exec, func() bool { return false })
	assert.Equal(t, "completed", result.Status)

	var out greetOut
	require.NoError(t, json.Unmarshal(result.Output, &out))
	assert.Equal(t, "hello ada", out.Greeting)
}

func TestRuntime_RunOne_PropagatesWorkflowFuncError(t *testing.T) {
	db := newTestWorkflowDB(t)
	ctx := context.Background()

	rt := NewRuntime(db, Registry{}, testRetryPolicy(), testTimeouts())
	require.NoError(t, rt.Register("always_fails", func(wfCtx WorkflowCtx, input json.RawMessage) (json.RawMessage, error) {
		_, err := wfCtx.ExecuteActivity("missing", nil)
		return nil, err
	}))

	runID, err := rt.Start(ctx, "wf-fail", "always_fails", nil)
	require.NoError(t, err)

	var exec database.WorkflowExecution
	require.NoError(t, db.Where("workflow_id = ? AND run_id = ?", "wf-fail", runID).First(&exec).Error)

	result := rt.runOne(ctx, exec, func() bool { return false })
	assert.Equal(t, "failed", result.Status)
	assert.Error(t, result.Err)
}

func TestRuntime_RunOne_CancelledDuringExecutionReportsCancelled(t *testing.T) {
	db := newTestWorkflowDB(t)
	ctx := context.Background()

	rt := NewRuntime(db, Registry{}, testRetryPolicy(), testTimeouts())
	require.NoError(t, rt.Register("cancellable", func(wfCtx WorkflowCtx, input json.RawMessage) (json.RawMessage, error) {
		_, err := wfCtx.ExecuteActivity("whatever", nil)
		return nil, err
	}))

	runID, err := rt.Start(ctx, "wf-cancel", "cancellable", nil)
	require.NoError(t, err)

	var exec database.WorkflowExecution
	require.NoError(t, db.Where("workflow_id = ? AND run_id = ?", "wf-cancel", runID).First(&exec).Error)

	result := rt.runOne(ctx, exec, func() bool { return true })
	assert.Equal(t, "cancelled", result.Status)
}

func TestRuntime_RunOne_ResumesFromHistoryWithoutRerunningCompletedActivity(t *testing.T) {
	db := newTestWorkflowDB(t)
	ctx := context.Background()

	var firstCalls, secondCalls int
	activities := Registry{
		"first":  func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) { firstCalls++; return []byte(`{"n":1}`), nil },
		"second": func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) { secondCalls++; return []byte(`{"n":2}`), nil },
	}
	rt := NewRuntime(db, activities, testRetryPolicy(), testTimeouts())
	require.NoError(t, rt.Register("two_step", func(wfCtx WorkflowCtx, input json.RawMessage) (json.RawMessage, error) {
		if _, err := wfCtx.ExecuteActivity("first", nil); err != nil {
			return nil, err
		}
		return wfCtx.ExecuteActivity("second", nil)
	}))

	runID, err := rt.Start(ctx, "wf-resume-runone", "two_step", nil)
	require.NoError(t, err)

	// A prior attempt already completed "first" before the process died;
	// runOne must see this in history and resume at "second".
	h := newHistory(db, "wf-resume-runone", runID)
	require.NoError(t, h.append(ctx, EventActivityScheduled, map[string]any{"activity_name": "first"}))
	require.NoError(t, h.append(ctx, EventActivityCompleted, map[string]any{"activity_name": "first", "output": json.RawMessage(`{"n":1}`)}))

	var exec database.WorkflowExecution
	require.NoError(t, db.Where("workflow_id = ? AND run_id = ?", "wf-resume-runone", runID).First(&exec).Error)

	result := rt.runOne(ctx, exec, func() bool { return false })
	assert.Equal(t, "completed", result.Status)
	assert.Equal(t, 0, firstCalls, "first was already completed in history and must not be re-invoked")
	assert.Equal(t, 1, secondCalls)
}

func TestRuntime_Register_DuplicateTypeErrors(t *testing.T) {
	db := newTestWorkflowDB(t)
	rt := NewRuntime(db, Registry{}, testRetryPolicy(), testTimeouts())
	fn := func(wfCtx WorkflowCtx, input json.RawMessage) (json.RawMessage, error) { return nil, nil }
	require.NoError(t, rt.Register("dup", fn))
	assert.Error(t, rt.Register("dup", fn))
}

func TestRuntime_Start_UnknownWorkflowTypeErrors(t *testing.T) {
	db := newTestWorkflowDB(t)
	rt := NewRuntime(db, Registry{}, testRetryPolicy(), testTimeouts())
	_, err := rt.Start(context.Background(), "wf-x", "nonexistent", nil)
	assert.Error(t, err)
}

func TestRuntime_RequestCancel_SetsCancelRequestedFlag(t *testing.T) {
	db := newTestWorkflowDB(t)
	ctx := context.Background()
	rt := NewRuntime(db, Registry{}, testRetryPolicy(), testTimeouts())
	require.NoError(t, rt.Register("noop", func(wfCtx WorkflowCtx, input json.RawMessage) (json.RawMessage, error) {
		return nil, nil
	}))

	runID, err := rt.Start(ctx, "wf-rc", "noop", nil)
	require.NoError(t, err)
	require.NoError(t, rt.RequestCancel(ctx, "wf-rc", runID))

	var exec database.WorkflowExecution
	require.NoError(t, db.Where("workflow_id = ? AND run_id = ?", "wf-rc", runID).First(&exec).Error)
	assert.True(t, exec.CancelRequested)
}
