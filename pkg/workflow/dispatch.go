package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/cogniflow/agentrt/pkg/metrics"
	"github.com/cogniflow/agentrt/pkg/taxonomy"
)

// ActivityFunc is one registered activity: JSON input in, JSON output out.
// pkg/activity's typed Library methods are adapted to this shape by
// WrapActivity.
type ActivityFunc func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)

// WrapActivity adapts a typed activity method (in *activity.Library) into
// an ActivityFunc, round-tripping its input/output through JSON — the same
// boundary pkg/activity.RunnerFor uses for graphs.
func WrapActivity[In, Out any](fn func(context.Context, In) (Out, error)) ActivityFunc {
	return func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
		var in In
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &in); err != nil {
				return nil, taxonomy.Wrap(taxonomy.SchemaViolation, "workflow.dispatch", err)
			}
		}
		out, err := fn(ctx, in)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(out)
		if err != nil {
			return nil, taxonomy.Wrap(taxonomy.Internal, "workflow.dispatch", err)
		}
		return encoded, nil
	}
}

// WrapActivityNoOutput adapts an activity method with no return value
// (e.g. MemoryUpdateMetadata) into an ActivityFunc returning `{}`.
func WrapActivityNoOutput[In any](fn func(context.Context, In) error) ActivityFunc {
	return func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
		var in In
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &in); err != nil {
				return nil, taxonomy.Wrap(taxonomy.SchemaViolation, "workflow.dispatch", err)
			}
		}
		if err := fn(ctx, in); err != nil {
			return nil, err
		}
		return []byte(`{}`), nil
	}
}

// Registry is the set of activities a Runtime can dispatch ExecuteActivity
// calls into, keyed by name (e.g. "memory_save", "graph_run", "post_social").
type Registry map[string]ActivityFunc

// dispatcher wraps Registry lookups with the retry policy, the three
// timeout classes, and a per-activity-name sony/gobreaker circuit breaker,
// so a failing downstream (vector store, LLM) opens the breaker instead of
// queuing endless retriable activities (spec.md §4.5).
type dispatcher struct {
	registry Registry
	retry    RetryPolicy
	timeouts Timeouts
	breakers map[string]*gobreaker.CircuitBreaker
	metrics  *metrics.Metrics
}

func newDispatcher(registry Registry, retry RetryPolicy, timeouts Timeouts) *dispatcher {
	return &dispatcher{registry: registry, retry: retry, timeouts: timeouts, breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func (d *dispatcher) breakerFor(name string) *gobreaker.CircuitBreaker {
	if b, ok := d.breakers[name]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	d.breakers[name] = b
	return b
}

// call runs the named activity with retry/backoff and per-attempt
// StartToClose timeout, classifying errors via taxonomy.Retryable so a
// SchemaViolation or NotFound fails fast instead of retrying.
func (d *dispatcher) call(ctx context.Context, name string, input json.RawMessage) (json.RawMessage, error) {
	fn, ok := d.registry[name]
	if !ok {
		return nil, taxonomy.New(taxonomy.SchemaViolation, "workflow.execute_activity", fmt.Sprintf("unknown activity %q", name))
	}
	breaker := d.breakerFor(name)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.retry.InitialInterval
	bo.Multiplier = d.retry.BackoffCoefficient
	bo.MaxInterval = d.retry.MaxInterval
	boWithLimit := backoff.WithMaxRetries(bo, uint64(d.retry.MaxAttempts-1))

	var out json.RawMessage
	attempt := 0
	op := func() error {
		isRetry := attempt > 0
		attempt++
		attemptStart := time.Now()

		attemptCtx := ctx
		var cancel context.CancelFunc
		if d.timeouts.StartToClose > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, d.timeouts.StartToClose)
			defer cancel()
		}

		result, err := breaker.Execute(func() (interface{}, error) {
			return fn(attemptCtx, input)
		})
		if err != nil {
			outcome := "error"
			if !taxonomy.Retryable(err) {
				outcome = "permanent_error"
			}
			d.recordActivityMetric(name, outcome, time.Since(attemptStart), isRetry)
			if outcome == "permanent_error" {
				return backoff.Permanent(err)
			}
			return err
		}
		d.recordActivityMetric(name, "success", time.Since(attemptStart), isRetry)
		out, _ = result.(json.RawMessage)
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(boWithLimit, ctx)); err != nil {
		var perm *backoff.PermanentError
		if pe, ok2 := err.(*backoff.PermanentError); ok2 {
			perm = pe
			return nil, perm.Err
		}
		return nil, err
	}
	return out, nil
}

func (d *dispatcher) recordActivityMetric(activityType, outcome string, duration time.Duration, isRetry bool) {
	if d.metrics != nil {
		d.metrics.RecordActivity(activityType, outcome, duration, isRetry)
	}
}
