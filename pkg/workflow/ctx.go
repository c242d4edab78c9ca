package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// execCtx is the concrete WorkflowCtx every WorkflowFunc runs against. It
// wraps a context.Context for cancellation propagation and records activity
// calls and fired timers in history; Now and NewUUID values are not recorded.
//
// replay holds activity occurrences this execution already completed in a
// prior attempt (populated from history when a crashed execution is
// reclaimed). ExecuteActivity consumes replay in call order before it ever
// reaches live dispatch — this is how a resumed WorkflowFunc running from
// its first statement again observes the same activity results it saw
// before the crash instead of re-running side effects (spec.md §8 S6). A
// fresh execution simply has an empty replay and every call dispatches
// live, exactly as before.
type execCtx struct {
	context.Context
	history    *history
	dispatcher *dispatcher
	uuidSeq    int
	cancelled  func() bool
	replay     []CompletedActivity
	replayIdx  int
}

func newExecCtx(ctx context.Context, h *history, d *dispatcher, cancelled func() bool, replay []CompletedActivity) *execCtx {
	return &execCtx{Context: ctx, history: h, dispatcher: d, cancelled: cancelled, replay: replay}
}

func (c *execCtx) Now() time.Time { return time.Now() }

// NewUUID returns a random v4 UUID. Like Now, and unlike ExecuteActivity,
// this is not recorded in history: spec.md's replay model reconstructs status from
// history, not workflow-function-local variables, so a workflow that needs
// a generated ID to be durable must pass it through an activity's
// input/output instead of relying on NewUUID's value surviving a crash.
func (c *execCtx) NewUUID() string {
	c.uuidSeq++
	return uuid.NewString()
}

func (c *execCtx) ExecuteActivity(activityName string, input any) (json.RawMessage, error) {
	if c.Cancelled() {
		return nil, context.Canceled
	}

	if c.replayIdx < len(c.replay) {
		recorded := c.replay[c.replayIdx]
		if recorded.Name == activityName {
			c.replayIdx++
			if recorded.Failed {
				return nil, errors.New(recorded.Error)
			}
			return recorded.Output, nil
		}
		// The call at this position no longer matches what history
		// recorded (the WorkflowFunc took a different branch than it
		// did before the crash) — replay can't be trusted past this
		// point, so fall through to live dispatch for the rest of the
		// execution.
		c.replay = nil
	}

	encoded, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	_ = c.history.append(c, EventActivityScheduled, map[string]any{"activity_name": activityName})

	out, callErr := c.dispatcher.call(c, activityName, encoded)
	if callErr != nil {
		_ = c.history.append(c, EventActivityFailed, map[string]any{"activity_name": activityName, "error": callErr.Error()})
		return nil, callErr
	}
	_ = c.history.append(c, EventActivityCompleted, map[string]any{"activity_name": activityName, "output": out})
	return out, nil
}

func (c *execCtx) Sleep(d time.Duration) error {
	if c.Cancelled() {
		return context.Canceled
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-c.Done():
		return c.Err()
	case <-timer.C:
		_ = c.history.append(c, EventTimerFired, map[string]any{"duration": d.String()})
		return nil
	}
}

// Signal blocks for signalName via a background poll of the event history
// — signals arrive out-of-band (an external SignalWorkflow call appends a
// SignalReceived event), and this execution has no live channel to that
// caller, so waiting means polling history for the matching event.
func (c *execCtx) Signal(signalName string) (json.RawMessage, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-c.Done():
			return nil, c.Err()
		case <-ticker.C:
			if c.Cancelled() {
				return nil, context.Canceled
			}
			payload, ok := c.history.findSignal(c, signalName)
			if ok {
				return payload, nil
			}
		}
	}
}

func (c *execCtx) Cancelled() bool {
	if c.cancelled != nil && c.cancelled() {
		return true
	}
	select {
	case <-c.Done():
		return true
	default:
		return false
	}
}
