package workflow

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogniflow/agentrt/pkg/config"
	"github.com/cogniflow/agentrt/pkg/database"
)

func testWorkflowConfig() *config.WorkflowConfig {
	return &config.WorkflowConfig{
		WorkerCount:             2,
		PollInterval:            20 * time.Millisecond,
		ClaimTimeout:            time.Second,
		HeartbeatInterval:       50 * time.Millisecond,
		MaxConcurrentExecutions: 10,
		DefaultRetryPolicy: &config.RetryPolicyConfig{
			InitialInterval:    time.Millisecond,
			BackoffCoefficient: 1,
			MaxInterval:        5 * time.Millisecond,
			MaxAttempts:        2,
		},
		DefaultTimeouts: &config.TimeoutConfig{
			ScheduleToStart: time.Second,
			StartToClose:    5 * time.Second,
			Heartbeat:       time.Second,
		},
		OrphanScanInterval: 50 * time.Millisecond,
	}
}

func TestWorkerPool_ClaimsAndCompletesExecution(t *testing.T) {
	db := newTestWorkflowDB(t)
	cfg := testWorkflowConfig()

	activities := Registry{
		"greet": WrapActivity(func(ctx context.Context, in greetIn) (greetOut, error) {
			return greetOut{Greeting: "hi " + in.Name}, nil
		}),
	}
	rt := NewRuntime(db, activities, RetryPolicy{
		InitialInterval: cfg.DefaultRetryPolicy.InitialInterval, BackoffCoefficient: cfg.DefaultRetryPolicy.BackoffCoefficient,
		MaxInterval: cfg.DefaultRetryPolicy.MaxInterval, MaxAttempts: cfg.DefaultRetryPolicy.MaxAttempts,
	}, Timeouts{
		ScheduleToStart: cfg.DefaultTimeouts.ScheduleToStart, StartToClose: cfg.DefaultTimeouts.StartToClose, Heartbeat: cfg.DefaultTimeouts.Heartbeat,
	})
	require.NoError(t, rt.Register("greeter", func(wfCtx WorkflowCtx, input json.RawMessage) (json.RawMessage, error) {
		var in greetIn
		_ = json.Unmarshal(input, &in)
		return wfCtx.ExecuteActivity("greet", in)
	}))

	pool := NewWorkerPool("pod-a", db, rt, cfg, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	defer pool.Stop()

	runID, err := rt.Start(context.Background(), "wf-pool", "greeter", []byte(`{"name":"lin"}`))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		var exec database.WorkflowExecution
		if err := db.Where("workflow_id = ? AND run_id = ?", "wf-pool", runID).First(&exec).Error; err != nil {
			return false
		}
		return exec.Status == "completed"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWorkerPool_Health_ReportsPodID(t *testing.T) {
	db := newTestWorkflowDB(t)
	cfg := testWorkflowConfig()
	rt := NewRuntime(db, Registry{}, RetryPolicy{InitialInterval: time.Millisecond, BackoffCoefficient: 1, MaxInterval: time.Millisecond, MaxAttempts: 1}, Timeouts{})
	pool := NewWorkerPool("pod-health", db, rt, cfg, slog.Default())

	health := pool.Health(context.Background())
	assert.Equal(t, "pod-health", health.PodID)
	assert.True(t, health.IsHealthy)
}

func TestWorkerPool_ScanOnce_ReclaimsStaleExecution(t *testing.T) {
	db := newTestWorkflowDB(t)
	cfg := testWorkflowConfig()
	rt := NewRuntime(db, Registry{}, RetryPolicy{InitialInterval: time.Millisecond, BackoffCoefficient: 1, MaxInterval: time.Millisecond, MaxAttempts: 1}, Timeouts{})
	pool := NewWorkerPool("pod-orphan", db, rt, cfg, slog.Default())

	stale := time.Now().Add(-time.Hour)
	exec := database.WorkflowExecution{
		WorkflowID:    "wf-orphan",
		RunID:         "run-orphan",
		Type:          "noop",
		Status:        "running",
		StartedAt:     stale,
		ClaimedBy:     "pod-dead",
		LastHeartbeat: &stale,
	}
	require.NoError(t, db.Create(&exec).Error)

	pool.scanOnce(context.Background())

	// Below MaxReclaimAttempts: the execution is unclaimed and handed back
	// to the claimable queue, not failed — spec.md §8 S6's crash-recovery
	// requires the execution to resume, not terminate.
	var reloaded database.WorkflowExecution
	require.NoError(t, db.Where("workflow_id = ? AND run_id = ?", "wf-orphan", "run-orphan").First(&reloaded).Error)
	assert.Equal(t, "running", reloaded.Status)
	assert.Empty(t, reloaded.ClaimedBy)
	assert.Nil(t, reloaded.LastHeartbeat)
	assert.Equal(t, 1, reloaded.ReclaimCount)

	health := pool.Health(context.Background())
	assert.Equal(t, 1, health.OrphansRecovered)
}

func TestWorkerPool_ScanOnce_FailsExecutionAfterMaxReclaimAttempts(t *testing.T) {
	db := newTestWorkflowDB(t)
	cfg := testWorkflowConfig()
	cfg.MaxReclaimAttempts = 2
	rt := NewRuntime(db, Registry{}, RetryPolicy{InitialInterval: time.Millisecond, BackoffCoefficient: 1, MaxInterval: time.Millisecond, MaxAttempts: 1}, Timeouts{})
	pool := NewWorkerPool("pod-orphan", db, rt, cfg, slog.Default())

	stale := time.Now().Add(-time.Hour)
	exec := database.WorkflowExecution{
		WorkflowID:    "wf-orphan-exhausted",
		RunID:         "run-orphan-exhausted",
		Type:          "noop",
		Status:        "running",
		StartedAt:     stale,
		ClaimedBy:     "pod-dead",
		LastHeartbeat: &stale,
		ReclaimCount:  2,
	}
	require.NoError(t, db.Create(&exec).Error)

	pool.scanOnce(context.Background())

	var reloaded database.WorkflowExecution
	require.NoError(t, db.Where("workflow_id = ? AND run_id = ?", "wf-orphan-exhausted", "run-orphan-exhausted").First(&reloaded).Error)
	assert.Equal(t, "failed", reloaded.Status)
	assert.Equal(t, "orphaned", reloaded.ErrorKind)
}

// TestWorkerPool_ResumesReclaimedExecutionPastCompletedActivity exercises
// spec.md §8 S6 end to end: an execution crashes (simulated: its first
// activity's history is written, then its claim is force-dropped) and the
// orphan scan unclaims it; the next poll picks it back up and resumes past
// the already-completed activity instead of re-running it, completing
// with both activities' effects applied exactly once.
func TestWorkerPool_ResumesReclaimedExecutionPastCompletedActivity(t *testing.T) {
	db := newTestWorkflowDB(t)
	cfg := testWorkflowConfig()

	var aCalls, bCalls int32
	activities := Registry{
		"a": func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
			atomic.AddInt32(&aCalls, 1)
			return []byte(`{"step":"a"}`), nil
		},
		"b": func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
			atomic.AddInt32(&bCalls, 1)
			return []byte(`{"step":"b"}`), nil
		},
	}
	rt := NewRuntime(db, activities, RetryPolicy{InitialInterval: time.Millisecond, BackoffCoefficient: 1, MaxInterval: time.Millisecond, MaxAttempts: 1}, Timeouts{})
	require.NoError(t, rt.Register("two-step", func(wfCtx WorkflowCtx, input json.RawMessage) (json.RawMessage, error) {
		if _, err := wfCtx.ExecuteActivity("a", nil); err != nil {
			return nil, err
		}
		return wfCtx.ExecuteActivity("b", nil)
	}))

	runID, err := rt.Start(context.Background(), "wf-resume", "two-step", []byte(`{}`))
	require.NoError(t, err)

	// Simulate a worker that claimed the execution, ran activity "a" to
	// completion (recorded in history), and then crashed before running
	// "b" or finalizing.
	h := newHistory(db, "wf-resume", runID)
	require.NoError(t, h.append(context.Background(), EventActivityScheduled, map[string]any{"activity_name": "a"}))
	require.NoError(t, h.append(context.Background(), EventActivityCompleted, map[string]any{"activity_name": "a", "output": json.RawMessage(`{"step":"a"}`)}))

	stale := time.Now().Add(-time.Hour)
	require.NoError(t, db.Model(&database.WorkflowExecution{}).
		Where("workflow_id = ? AND run_id = ?", "wf-resume", runID).
		Updates(map[string]any{"claimed_by": "pod-dead", "claimed_at": stale, "last_heartbeat": stale}).Error)

	pool := NewWorkerPool("pod-resume", db, rt, cfg, slog.Default())
	pool.scanOnce(context.Background())

	var afterScan database.WorkflowExecution
	require.NoError(t, db.Where("workflow_id = ? AND run_id = ?", "wf-resume", runID).First(&afterScan).Error)
	require.Equal(t, "running", afterScan.Status)
	require.Empty(t, afterScan.ClaimedBy)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	defer pool.Stop()

	require.Eventually(t, func() bool {
		var exec database.WorkflowExecution
		if err := db.Where("workflow_id = ? AND run_id = ?", "wf-resume", runID).First(&exec).Error; err != nil {
			return false
		}
		return exec.Status == "completed"
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, int32(0), atomic.LoadInt32(&aCalls), "activity a already completed before the crash must not be re-run")
	assert.Equal(t, int32(1), atomic.LoadInt32(&bCalls), "activity b must run exactly once after resume")
}
