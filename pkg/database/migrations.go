package database

import (
	"context"
	stdsql "database/sql"
	"fmt"
)

// CreateGINIndexes creates JSONB GIN indexes not expressed by gorm struct
// tags, exactly as tarsy/pkg/database/migrations.go does for its own
// full-text indexes (there: alert_data/final_analysis tsvector GIN
// indexes; here: workflow event/input JSONB GIN indexes).
func CreateGINIndexes(ctx context.Context, db *stdsql.DB) error {
	_, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_workflow_events_payload_gin
		ON workflow_events USING gin(payload)`)
	if err != nil {
		return fmt.Errorf("failed to create workflow_events payload GIN index: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_workflow_executions_input_gin
		ON workflow_executions USING gin(input)`)
	if err != nil {
		return fmt.Errorf("failed to create workflow_executions input GIN index: %w", err)
	}

	return nil
}
