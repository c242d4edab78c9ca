// Package cleanup provides data retention and cleanup services.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/cogniflow/agentrt/pkg/config"
	"github.com/cogniflow/agentrt/pkg/database"
)

// Service periodically enforces retention policies:
//   - Soft-deletes closed WorkflowExecutions older than
//     RetentionConfig.SessionRetentionDays
//   - Removes WorkflowEvent rows belonging to soft-deleted executions,
//     past RetentionConfig.EventTTL
//
// All operations are idempotent and safe to run from multiple pods.
type Service struct {
	config *config.RetentionConfig
	db     *database.Client

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg *config.RetentionConfig, db *database.Client) *Service {
	return &Service{config: cfg, db: db}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("cleanup service started",
		"session_retention_days", s.config.SessionRetentionDays,
		"event_ttl", s.config.EventTTL,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.softDeleteOldExecutions(ctx)
	s.cleanupOrphanedEvents(ctx)
}

// softDeleteOldExecutions marks closed WorkflowExecutions older than
// SessionRetentionDays as deleted, so GET /workflows/{id} and the
// dashboard stop surfacing them without losing the audit trail outright.
func (s *Service) softDeleteOldExecutions(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -s.config.SessionRetentionDays)
	now := time.Now()

	result := s.db.WithContext(ctx).Model(&database.WorkflowExecution{}).
		Where("deleted_at IS NULL AND closed_at IS NOT NULL AND closed_at < ?", cutoff).
		Update("deleted_at", now)
	if result.Error != nil {
		slog.Error("retention: soft-delete executions failed", "error", result.Error)
		return
	}
	if result.RowsAffected > 0 {
		slog.Info("retention: soft-deleted old executions", "count", result.RowsAffected)
	}
}

// cleanupOrphanedEvents deletes WorkflowEvent rows whose owning execution
// was soft-deleted more than EventTTL ago — a safety net, since the
// execution's own audit trail no longer needs them once the execution
// itself has aged out.
func (s *Service) cleanupOrphanedEvents(ctx context.Context) {
	cutoff := time.Now().Add(-s.config.EventTTL)

	result := s.db.WithContext(ctx).
		Where("(workflow_id, run_id) IN (?)",
			s.db.Model(&database.WorkflowExecution{}).
				Select("workflow_id, run_id").
				Where("deleted_at IS NOT NULL AND deleted_at < ?", cutoff),
		).
		Delete(&database.WorkflowEvent{})
	if result.Error != nil {
		slog.Error("retention: event cleanup failed", "error", result.Error)
		return
	}
	if result.RowsAffected > 0 {
		slog.Info("retention: cleaned up orphaned events", "count", result.RowsAffected)
	}
}
