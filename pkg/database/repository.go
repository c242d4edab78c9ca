package database

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cogniflow/agentrt/pkg/taxonomy"
)

// onConflictDoNothing builds an ON CONFLICT(column) DO NOTHING clause, so a
// retried activity attempt racing its own prior write doesn't error.
func onConflictDoNothing(column string) clause.OnConflict {
	return clause.OnConflict{Columns: []clause.Column{{Name: column}}, DoNothing: true}
}

// FindIdempotencyRecord looks up a prior result for key, returning nil if
// none exists — the post.Social activity's idempotency check.
func (c *Client) FindIdempotencyRecord(ctx context.Context, key string) (*IdempotencyRecord, error) {
	var rec IdempotencyRecord
	err := c.DB.WithContext(ctx).Where("key = ?", key).First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, taxonomy.Wrap(taxonomy.Transient, "database.find_idempotency_record", err)
	}
	return &rec, nil
}

// SaveIdempotencyRecord persists a completed side-effecting activity's
// result, keyed by the caller-supplied idempotency key.
func (c *Client) SaveIdempotencyRecord(ctx context.Context, key, activityName string, output []byte) error {
	rec := IdempotencyRecord{Key: key, Activity: activityName, Output: output, CreatedAt: time.Now()}
	if err := c.DB.WithContext(ctx).Clauses(onConflictDoNothing("key")).Create(&rec).Error; err != nil {
		return taxonomy.Wrap(taxonomy.Transient, "database.save_idempotency_record", err)
	}
	return nil
}

// SaveReport writes one report.Save activity row.
func (c *Client) SaveReport(ctx context.Context, reportType string, payload []byte) error {
	rec := Report{ReportType: reportType, Payload: payload, CreatedAt: time.Now()}
	if err := c.DB.WithContext(ctx).Create(&rec).Error; err != nil {
		return taxonomy.Wrap(taxonomy.Transient, "database.save_report", err)
	}
	return nil
}
