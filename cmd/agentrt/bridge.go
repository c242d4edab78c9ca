package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/cogniflow/agentrt/pkg/api"
	"github.com/cogniflow/agentrt/pkg/database"
)

// executionEventBridge polls for WorkflowExecution status changes and
// republishes them to the event stream. pkg/workflow's worker pool closes
// out executions deep inside its claim loop with no observer hook of its
// own (adding one would mean threading a publish callback through every
// worker), so this bridge stays outside that package and diffs status on
// a short interval instead — good enough for a dashboard feed that is
// explicitly not the system of record (the HTTP status endpoints and the
// event history table are).
type executionEventBridge struct {
	db     *database.Client
	server *api.Server
	logger *slog.Logger

	seen map[string]string // "workflowID/runID" -> last published status
}

func newExecutionEventBridge(db *database.Client, server *api.Server, logger *slog.Logger) *executionEventBridge {
	return &executionEventBridge{db: db, server: server, logger: logger, seen: make(map[string]string)}
}

func (b *executionEventBridge) run(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.pollOnce(ctx)
		}
	}
}

func (b *executionEventBridge) pollOnce(ctx context.Context) {
	var execs []database.WorkflowExecution
	err := b.db.WithContext(ctx).
		Where("started_at > ?", time.Now().Add(-time.Hour)).
		Find(&execs).Error
	if err != nil {
		b.logger.Warn("execution event bridge: query failed", "error", err)
		return
	}

	for _, e := range execs {
		key := e.WorkflowID + "/" + e.RunID
		if b.seen[key] == e.Status {
			continue
		}
		b.seen[key] = e.Status

		eventType := "WorkflowStatusChanged"
		switch e.Status {
		case "completed", "failed", "cancelled", "timed_out":
			eventType = "WorkflowCompleted"
		}
		b.server.PublishEvent(eventType, e.WorkflowID, e.RunID, map[string]string{"status": e.Status, "type": e.Type})
	}

	if len(b.seen) > 10000 {
		b.seen = make(map[string]string, len(execs))
	}
}
