// Package workflow implements the C5 durable execution runtime: a
// DB-backed worker pool that claims WorkflowExecution rows and runs a
// registered WorkflowFunc against them, an append-only event history,
// activity dispatch with retry/timeout/circuit-breaking, and signal and
// cancellation support; there is no workflow query mechanism.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Sentinel errors for the claim loop, grounded on tarsy/pkg/queue/types.go's
// ErrNoSessionsAvailable/ErrAtCapacity pair.
var (
	ErrNoExecutionsAvailable = errors.New("no workflow executions available")
	ErrAtCapacity            = errors.New("at capacity")
)

// WorkflowFunc is the only shape a registered workflow takes: input/output
// cross the activity boundary as JSON, and ctx is the sole sanctioned
// source of time, randomness, activity scheduling, timers, and signals
// (spec.md §4.5 — no direct clock/random/network/env access from
// workflow code).
type WorkflowFunc func(ctx WorkflowCtx, input json.RawMessage) (json.RawMessage, error)

// WorkflowCtx is what a WorkflowFunc is given instead of a bare
// context.Context. Every side-effecting or nondeterministic operation
// routes through here so it can be recorded in the execution's event
// history.
type WorkflowCtx interface {
	context.Context

	// Now returns the current time. Workflow code must never call
	// time.Now() directly.
	Now() time.Time
	// NewUUID returns a new random ID. It is not recorded in history, so
	// re-running the workflow function produces a different value.
	NewUUID() string

	// ExecuteActivity dispatches a registered activity by name, applying
	// the execution's retry policy and timeout classes, and records a
	// ActivityScheduled/ActivityCompleted (or Failed) event pair.
	ExecuteActivity(activityName string, input any) (json.RawMessage, error)

	// Sleep blocks until d elapses or the execution is cancelled,
	// recording a TimerFired event when the timer fires.
	Sleep(d time.Duration) error

	// Signal blocks until a signal named signalName arrives (recorded as
	// it's received by an external SignalWorkflow call), or ctx is
	// cancelled. Returns the signal's payload.
	Signal(signalName string) (json.RawMessage, error)

	// Cancelled reports whether cancellation has been requested
	// cooperatively (spec.md §4.5/§5): checked before each activity
	// schedule and at each timer.
	Cancelled() bool
}

// RetryPolicy is the activity retry policy, per spec.md §4.5's exact
// defaults (config.DefaultRetryPolicy): 1s initial interval, 2x backoff
// coefficient, 60s cap, 3 attempts. Whether a failed attempt is retried at
// all is decided by taxonomy.Retryable, not by a field of this policy.
type RetryPolicy struct {
	InitialInterval    time.Duration
	BackoffCoefficient float64
	MaxInterval        time.Duration
	MaxAttempts        int
}

// Timeouts are the three timeout classes per spec.md §4.5.
type Timeouts struct {
	ScheduleToStart time.Duration
	StartToClose    time.Duration
	Heartbeat       time.Duration
}

// ExecutionResult is what a worker records once a WorkflowFunc returns.
type ExecutionResult struct {
	Status string // completed, failed, cancelled
	Output json.RawMessage
	Err    error
}

// PoolHealth mirrors tarsy/pkg/queue/types.go's PoolHealth, generalized
// from "sessions" to "workflow executions".
type PoolHealth struct {
	IsHealthy        bool
	PodID            string
	ActiveWorkers    int
	TotalWorkers     int
	ActiveExecutions int
	MaxConcurrent    int
	QueueDepth       int
	OrphansRecovered int
}
