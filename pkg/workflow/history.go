package workflow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cogniflow/agentrt/pkg/database"
)

// Event kinds recorded in WorkflowEvent.Kind, per spec.md §4.5's
// append-only history.
const (
	EventWorkflowStarted    = "workflow_started"
	EventActivityScheduled  = "activity_scheduled"
	EventActivityCompleted  = "activity_completed"
	EventActivityFailed     = "activity_failed"
	EventTimerFired         = "timer_fired"
	EventSignalReceived     = "signal_received"
	EventWorkflowCompleted  = "workflow_completed"
	EventWorkflowFailed     = "workflow_failed"
	EventWorkflowCancelled  = "workflow_cancelled"
)

// history appends WorkflowEvent rows for one execution and hands out
// monotonically increasing sequence numbers. It is the execution's
// complete audit trail: every ExecuteActivity/Sleep/Signal call a
// WorkflowFunc makes is recorded here before the function observes the
// result, so an operator inspecting workflow_events always sees exactly
// what the workflow did, in order. seq is computed from the current max
// per (workflow_id, run_id) at append time rather than counted in memory,
// so an externally appended SignalReceived event (pkg/api's signal
// endpoint, a separate history instance) never collides with the owning
// worker's own sequence numbers.
type history struct {
	db         *database.Client
	workflowID string
	runID      string
}

func newHistory(db *database.Client, workflowID, runID string) *history {
	return &history{db: db, workflowID: workflowID, runID: runID}
}

func (h *history) append(ctx context.Context, kind string, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		encoded = []byte(`{}`)
	}

	var seq uint64
	if err := h.db.WithContext(ctx).Model(&database.WorkflowEvent{}).
		Where("workflow_id = ? AND run_id = ?", h.workflowID, h.runID).
		Select("COALESCE(MAX(seq), 0) + 1").Scan(&seq).Error; err != nil {
		return err
	}

	event := database.WorkflowEvent{
		WorkflowID: h.workflowID,
		RunID:      h.runID,
		Seq:        seq,
		Kind:       kind,
		Payload:    encoded,
		Timestamp:  time.Now(),
	}
	return h.db.WithContext(ctx).Create(&event).Error
}

// CompletedActivity is one activity occurrence this execution already ran
// to completion, in call order. ExecuteActivity consults these in order on
// a resumed execution instead of redispatching — a reclaimed execution
// must not re-run an activity whose effects (a publish, a charge) already
// happened (spec.md §8 S6).
type CompletedActivity struct {
	Name   string
	Output json.RawMessage
	Failed bool
	Error  string
}

// ReplayState is a workflow's event history folded into a summary by
// Replay — used by runOne to resume a reclaimed execution from where it left off (spec.md
// §4.5: "replay reconstructs WorkflowExecution.Status and in-flight
// activity futures from history — never from live state").
type ReplayState struct {
	LastEventSeq        uint64
	InFlightActivity    string
	CompletedActivity   []string
	CompletedActivities []CompletedActivity
	Cancelled           bool
}

// findSignal checks whether a SignalReceived event for signalName has been
// appended to this execution's history, returning its payload if so.
func (h *history) findSignal(ctx context.Context, signalName string) (json.RawMessage, bool) {
	var event database.WorkflowEvent
	err := h.db.WithContext(ctx).
		Where("workflow_id = ? AND run_id = ? AND kind = ?", h.workflowID, h.runID, EventSignalReceived).
		Order("seq ASC").
		Find(&event, "payload->>'signal_name' = ?", signalName).Error
	if err != nil || event.ID == 0 {
		return nil, false
	}
	var wrapper struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(event.Payload, &wrapper); err != nil {
		return nil, false
	}
	return wrapper.Payload, true
}

// SignalWorkflow appends a SignalReceived event for a running execution —
// the external entry point pkg/api's signal endpoint calls.
func SignalWorkflow(ctx context.Context, db *database.Client, workflowID, runID, signalName string, payload json.RawMessage) error {
	h := newHistory(db, workflowID, runID)
	return h.append(ctx, EventSignalReceived, map[string]any{"signal_name": signalName, "payload": payload})
}

// Replay reads every WorkflowEvent for (workflowID, runID) in seq order and
// folds it into a ReplayState, including the ordered list of activity
// occurrences this execution already completed (with their recorded
// outputs). runOne feeds CompletedActivities to a fresh execCtx before
// invoking the WorkflowFunc, so a reclaimed execution's calls to
// ExecuteActivity that match history return the recorded result instead of
// redispatching — once the replayed calls are exhausted, ExecuteActivity
// falls through to live dispatch and the execution proceeds from where it
// was interrupted (spec.md §8 S6). Outside tests, runOne is its only
// caller.
func Replay(ctx context.Context, db *database.Client, workflowID, runID string) (ReplayState, error) {
	var events []database.WorkflowEvent
	err := db.WithContext(ctx).
		Where("workflow_id = ? AND run_id = ?", workflowID, runID).
		Order("seq ASC").
		Find(&events).Error
	if err != nil {
		return ReplayState{}, err
	}

	var state ReplayState
	for _, e := range events {
		state.LastEventSeq = e.Seq
		switch e.Kind {
		case EventActivityScheduled:
			var p struct {
				Name string `json:"activity_name"`
			}
			_ = json.Unmarshal(e.Payload, &p)
			state.InFlightActivity = p.Name
		case EventActivityCompleted:
			if state.InFlightActivity != "" {
				var p struct {
					Output json.RawMessage `json:"output"`
				}
				_ = json.Unmarshal(e.Payload, &p)
				state.CompletedActivity = append(state.CompletedActivity, state.InFlightActivity)
				state.CompletedActivities = append(state.CompletedActivities, CompletedActivity{
					Name: state.InFlightActivity, Output: p.Output,
				})
				state.InFlightActivity = ""
			}
		case EventActivityFailed:
			if state.InFlightActivity != "" {
				var p struct {
					Error string `json:"error"`
				}
				_ = json.Unmarshal(e.Payload, &p)
				state.CompletedActivity = append(state.CompletedActivity, state.InFlightActivity)
				state.CompletedActivities = append(state.CompletedActivities, CompletedActivity{
					Name: state.InFlightActivity, Failed: true, Error: p.Error,
				})
				state.InFlightActivity = ""
			}
		case EventWorkflowCancelled:
			state.Cancelled = true
		}
	}
	return state, nil
}
