package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cogniflow/agentrt/pkg/database"
	"github.com/cogniflow/agentrt/pkg/metrics"
)

// OverlapPolicy controls what happens when a Schedule fires while its
// previous firing's workflow execution is still running, per spec.md §4.5.
type OverlapPolicy string

const (
	OverlapSkip      OverlapPolicy = "skip"
	OverlapBufferOne OverlapPolicy = "buffer_one"
	OverlapAllowAll  OverlapPolicy = "allow_all"
)

// Starter is the subset of *workflow.Runtime the scheduler needs —
// declared as an interface here (rather than importing pkg/workflow
// directly) to avoid an import cycle, since pkg/workflow/cron ships as a
// subpackage of pkg/workflow.
type Starter interface {
	Start(ctx context.Context, workflowID, workflowType string, input json.RawMessage) (runID string, err error)
}

// ExecutionStatusChecker reports whether a workflow execution started by
// the schedule whose ID is passed (execution ID "{schedule_id}-{fire_time}")
// is still running, so the scheduler can apply overlap policy.
type ExecutionStatusChecker interface {
	IsRunning(ctx context.Context, workflowID string) (bool, error)
}

// dbStatusChecker implements ExecutionStatusChecker against
// database.WorkflowExecution.
type dbStatusChecker struct {
	db *database.Client
}

func (c *dbStatusChecker) IsRunning(ctx context.Context, workflowID string) (bool, error) {
	var count int64
	err := c.db.WithContext(ctx).Model(&database.WorkflowExecution{}).
		Where("(workflow_id = ? OR workflow_id LIKE ?) AND status = ?", workflowID, workflowID+"-%", "running").
		Count(&count).Error
	return count > 0, err
}

// NewDBStatusChecker wraps db as an ExecutionStatusChecker.
func NewDBStatusChecker(db *database.Client) ExecutionStatusChecker {
	return &dbStatusChecker{db: db}
}

// Scheduler polls persisted ScheduleRecord rows, evaluates each one's
// cron expression against the current time, and starts a new workflow
// execution on each firing — honoring each schedule's overlap policy and
// pause flag.
type Scheduler struct {
	db      *database.Client
	starter Starter
	checker ExecutionStatusChecker
	logger  *slog.Logger

	pollInterval time.Duration

	mu      sync.Mutex
	buffers map[string]bool // schedule_id -> has one buffered firing pending (buffer_one policy)

	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup

	metrics *metrics.Metrics
}

// SetMetrics attaches a Prometheus collector the scheduler reports firing
// outcomes into. Optional.
func (s *Scheduler) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// NewScheduler constructs a Scheduler. pollInterval should be well under
// one minute (the cron resolution) to fire promptly — 10s is a reasonable
// default.
func NewScheduler(db *database.Client, starter Starter, pollInterval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	return &Scheduler{
		db:           db,
		starter:      starter,
		checker:      NewDBStatusChecker(db),
		logger:       logger,
		pollInterval: pollInterval,
		buffers:      make(map[string]bool),
		stopCh:       make(chan struct{}),
	}
}

// Start runs the scheduler loop in the background until Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop signals the loop to exit and waits for it.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Scheduler) tick(ctx context.Context) {
	var records []database.ScheduleRecord
	if err := s.db.WithContext(ctx).Where("paused = ?", false).Find(&records).Error; err != nil {
		s.logger.Error("cron: failed to list schedules", "error", err)
		return
	}

	now := time.Now().UTC()
	for _, rec := range records {
		if err := s.evaluate(ctx, rec, now); err != nil {
			s.logger.Error("cron: schedule evaluation failed", "schedule_id", rec.ID, "error", err)
		}
	}
}

// evaluate checks whether rec is due to fire at or before now (using
// LastFireAt as the high-water mark) and, if so, fires the first boundary
// after LastFireAt. At most one firing happens per tick: LastFireAt
// advances only to the boundary just fired, so a schedule that missed
// several boundaries fires them on successive ticks, one per tick. When no
// boundary is due, a firing buffered under buffer_one is started once the
// previous execution is no longer running.
func (s *Scheduler) evaluate(ctx context.Context, rec database.ScheduleRecord, now time.Time) error {
	schedule, err := Parse(rec.CronExpression)
	if err != nil {
		return fmt.Errorf("parse %q: %w", rec.CronExpression, err)
	}

	from := now.Add(-time.Minute)
	if rec.LastFireAt != nil {
		from = *rec.LastFireAt
	}
	fireAt := schedule.Next(from)
	if fireAt.IsZero() || fireAt.After(now) {
		s.mu.Lock()
		buffered := s.buffers[rec.ID]
		s.mu.Unlock()
		if !buffered || rec.LastFireAt == nil {
			return nil
		}
		running, err := s.checker.IsRunning(ctx, rec.ID)
		if err != nil || running {
			return err
		}
		return s.fire(ctx, rec, *rec.LastFireAt)
	}

	return s.fire(ctx, rec, fireAt)
}

func (s *Scheduler) fire(ctx context.Context, rec database.ScheduleRecord, fireAt time.Time) error {
	policy := OverlapPolicy(rec.OverlapPolicy)
	if policy == "" {
		policy = OverlapSkip
	}

	if policy != OverlapAllowAll {
		running, err := s.checker.IsRunning(ctx, rec.ID)
		if err != nil {
			return err
		}
		if running {
			switch policy {
			case OverlapSkip:
				s.logger.Info("cron: firing skipped, previous execution still running", "schedule_id", rec.ID)
				s.recordFireMetric(rec.ID, "skipped")
				return s.markFired(ctx, rec.ID, fireAt)
			case OverlapBufferOne:
				s.mu.Lock()
				s.buffers[rec.ID] = true
				s.mu.Unlock()
				s.recordFireMetric(rec.ID, "buffered")
				return s.markFired(ctx, rec.ID, fireAt)
			}
		}
	}

	s.mu.Lock()
	buffered := s.buffers[rec.ID]
	delete(s.buffers, rec.ID)
	s.mu.Unlock()
	_ = buffered // buffered firing is consumed by this start; nothing further to replay, spec.md §4.5 only requires "queue at most one".

	executionID := fmt.Sprintf("%s-%s", rec.ID, fireAt.UTC().Format(time.RFC3339))
	if _, err := s.starter.Start(ctx, executionID, rec.WorkflowType, []byte(rec.InputTemplate)); err != nil {
		s.recordFireMetric(rec.ID, "error")
		return fmt.Errorf("start workflow for schedule %q: %w", rec.ID, err)
	}
	s.logger.Info("cron: schedule fired", "schedule_id", rec.ID, "execution_id", executionID)
	s.recordFireMetric(rec.ID, "fired")
	return s.markFired(ctx, rec.ID, fireAt)
}

func (s *Scheduler) recordFireMetric(scheduleID, outcome string) {
	if s.metrics != nil {
		s.metrics.CronFires.WithLabelValues(scheduleID, outcome).Inc()
	}
}

func (s *Scheduler) markFired(ctx context.Context, scheduleID string, fireAt time.Time) error {
	return s.db.WithContext(ctx).Model(&database.ScheduleRecord{}).
		Where("id = ?", scheduleID).
		Update("last_fire_at", fireAt).Error
}

// Pause sets a schedule's paused flag. Pause/unpause never affects
// already-started workflow executions (spec.md §4.5: "pause/unpause is a
// no-op on existing executions").
func Pause(ctx context.Context, db *database.Client, scheduleID string, paused bool) error {
	return db.WithContext(ctx).Model(&database.ScheduleRecord{}).
		Where("id = ?", scheduleID).
		Update("paused", paused).Error
}
