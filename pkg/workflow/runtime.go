package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cogniflow/agentrt/pkg/database"
	"github.com/cogniflow/agentrt/pkg/metrics"
)

// Runtime is the entry point a server process constructs once: it holds
// every registered WorkflowFunc (by workflow type name) and the activity
// Registry they dispatch into, and is shared by both the HTTP surface
// (starting new executions, signaling/querying running ones) and the
// WorkerPool (claiming and running them).
type Runtime struct {
	db         *database.Client
	workflows  map[string]WorkflowFunc
	dispatcher *dispatcher
	retry      RetryPolicy
	timeouts   Timeouts
	metrics    *metrics.Metrics
}

// NewRuntime constructs a Runtime. retry/timeouts apply to every activity
// dispatched by every registered workflow — spec.md §4.5 does not scope
// retry policy per-workflow-type.
func NewRuntime(db *database.Client, activities Registry, retry RetryPolicy, timeouts Timeouts) *Runtime {
	return &Runtime{
		db:         db,
		workflows:  make(map[string]WorkflowFunc),
		dispatcher: newDispatcher(activities, retry, timeouts),
		retry:      retry,
		timeouts:   timeouts,
	}
}

// SetMetrics attaches a Prometheus collector that runOne and the
// dispatcher report into. Optional — a Runtime built without one (as in
// most package tests) simply records nothing.
func (r *Runtime) SetMetrics(m *metrics.Metrics) {
	r.metrics = m
	r.dispatcher.metrics = m
}

// Register adds a WorkflowFunc under workflowType. Registering the same
// type twice is a programming error.
func (r *Runtime) Register(workflowType string, fn WorkflowFunc) error {
	if _, exists := r.workflows[workflowType]; exists {
		return fmt.Errorf("workflow: type %q already registered", workflowType)
	}
	r.workflows[workflowType] = fn
	return nil
}

// Start creates a new WorkflowExecution row in the running state with a
// fresh run ID, for the claim loop to pick up — this is what pkg/api's
// POST /workflows handler and pkg/workflow/cron's scheduler both call.
func (r *Runtime) Start(ctx context.Context, workflowID, workflowType string, input json.RawMessage) (runID string, err error) {
	if _, ok := r.workflows[workflowType]; !ok {
		return "", fmt.Errorf("workflow: unknown workflow type %q", workflowType)
	}
	runID = uuid.NewString()
	exec := database.WorkflowExecution{
		WorkflowID: workflowID,
		RunID:      runID,
		Type:       workflowType,
		Input:      input,
		Status:     "running",
		StartedAt:  time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(&exec).Error; err != nil {
		return "", err
	}
	h := newHistory(r.db, workflowID, runID)
	_ = h.append(ctx, EventWorkflowStarted, map[string]any{"workflow_type": workflowType})
	return runID, nil
}

// RequestCancel sets WorkflowExecution.CancelRequested. The owning
// worker's execCtx observes this cooperatively before each activity
// schedule and at each timer (spec.md §4.5/§5).
func (r *Runtime) RequestCancel(ctx context.Context, workflowID, runID string) error {
	return r.db.WithContext(ctx).Model(&database.WorkflowExecution{}).
		Where("workflow_id = ? AND run_id = ?", workflowID, runID).
		Update("cancel_requested", true).Error
}

// runOne executes a claimed execution's WorkflowFunc to completion,
// recording terminal status and output/error. Called by Worker from
// pool.go. A fresh execution has no prior history, so it dispatches every
// activity live; an execution reclaimed from a crashed worker (pool.go's
// orphan scan unclaims rather than fails it, up to
// WorkflowConfig.MaxReclaimAttempts) replays its recorded activity
// occurrences first — the WorkflowFunc runs from its first statement
// again, but ExecuteActivity returns the recorded results for calls that
// already happened instead of re-invoking them (spec.md §8 S6).
func (r *Runtime) runOne(ctx context.Context, exec database.WorkflowExecution, cancelled func() bool) ExecutionResult {
	start := time.Now()
	fn := r.workflows[exec.Type]
	h := newHistory(r.db, exec.WorkflowID, exec.RunID)

	replayState, err := Replay(ctx, r.db, exec.WorkflowID, exec.RunID)
	if err != nil {
		r.recordWorkflowMetric(exec.Type, "failed", time.Since(start))
		return ExecutionResult{Status: "failed", Err: err}
	}
	wfCtx := newExecCtx(ctx, h, r.dispatcher, cancelled, replayState.CompletedActivities)

	output, err := fn(wfCtx, exec.Input)
	if err != nil {
		if cancelled() {
			_ = h.append(ctx, EventWorkflowCancelled, map[string]any{})
			r.recordWorkflowMetric(exec.Type, "cancelled", time.Since(start))
			return ExecutionResult{Status: "cancelled", Err: err}
		}
		_ = h.append(ctx, EventWorkflowFailed, map[string]any{"error": err.Error()})
		r.recordWorkflowMetric(exec.Type, "failed", time.Since(start))
		return ExecutionResult{Status: "failed", Err: err}
	}
	_ = h.append(ctx, EventWorkflowCompleted, map[string]any{})
	r.recordWorkflowMetric(exec.Type, "completed", time.Since(start))
	return ExecutionResult{Status: "completed", Output: output}
}

func (r *Runtime) recordWorkflowMetric(workflowType, status string, duration time.Duration) {
	if r.metrics != nil {
		r.metrics.RecordWorkflow(workflowType, status, duration)
	}
}
