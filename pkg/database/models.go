package database

import "time"

// WorkflowExecution is the persisted record of one workflow run, per
// spec.md §3. History is the authoritative source of truth; Status here is
// a denormalized projection kept in sync by the worker for fast querying
// (GET /workflows/{id}).
type WorkflowExecution struct {
	WorkflowID string `gorm:"column:workflow_id;primaryKey"`
	RunID      string `gorm:"column:run_id;primaryKey"`
	Type       string `gorm:"column:type;index"`
	Input      []byte `gorm:"column:input;type:jsonb"`
	Output     []byte `gorm:"column:output;type:jsonb"`
	Status     string `gorm:"column:status;index"` // running, completed, failed, cancelled, timed_out
	ErrorKind  string `gorm:"column:error_kind"`
	ErrorMsg   string `gorm:"column:error_message"`

	StartedAt time.Time  `gorm:"column:started_at"`
	ClosedAt  *time.Time `gorm:"column:closed_at"`
	DeletedAt *time.Time `gorm:"column:deleted_at;index"`

	CancelRequested bool `gorm:"column:cancel_requested"`

	// claim/ownership bookkeeping for the worker pool's FOR UPDATE SKIP
	// LOCKED claim loop, adapted from the teacher's AlertSession status
	// machine.
	ClaimedBy      string     `gorm:"column:claimed_by"`
	ClaimedAt      *time.Time `gorm:"column:claimed_at"`
	LastHeartbeat  *time.Time `gorm:"column:last_heartbeat"`
	NextSeq        uint64     `gorm:"column:next_seq"`

	// ReclaimCount counts how many times the orphan scanner has unclaimed
	// this execution after a stale heartbeat. Capped by
	// config.WorkflowConfig.MaxReclaimAttempts.
	ReclaimCount int `gorm:"column:reclaim_count"`
}

func (WorkflowExecution) TableName() string { return "workflow_executions" }

// WorkflowEvent is one append-only entry in a workflow's history, per
// spec.md §3. Never updated once written, and deleted only by pkg/cleanup's
// retention sweep; replay reconstructs
// workflow state by folding these events in seq order.
type WorkflowEvent struct {
	ID         uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	WorkflowID string    `gorm:"column:workflow_id;uniqueIndex:idx_workflow_run_seq"`
	RunID      string    `gorm:"column:run_id;uniqueIndex:idx_workflow_run_seq"`
	Seq        uint64    `gorm:"column:seq;uniqueIndex:idx_workflow_run_seq"`
	Kind       string    `gorm:"column:kind"`
	Payload    []byte    `gorm:"column:payload;type:jsonb"`
	Timestamp  time.Time `gorm:"column:timestamp"`
}

func (WorkflowEvent) TableName() string { return "workflow_events" }

// ScheduleRecord is the persisted operator-managed Schedule, per spec.md §3.
type ScheduleRecord struct {
	ID             string     `gorm:"column:id;primaryKey"`
	CronExpression string     `gorm:"column:cron_expression"`
	WorkflowType   string     `gorm:"column:workflow_type"`
	InputTemplate  string     `gorm:"column:input_template;type:jsonb"`
	Paused         bool       `gorm:"column:paused"`
	OverlapPolicy  string     `gorm:"column:overlap_policy"`
	Note           string     `gorm:"column:note"`
	LastFireAt     *time.Time `gorm:"column:last_fire_at"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at"`
}

func (ScheduleRecord) TableName() string { return "schedules" }

// IdempotencyRecord tracks external-API idempotency keys seen by
// side-effecting activities (e.g. post.social), so a retried activity
// attempt can detect a prior success instead of posting twice.
type IdempotencyRecord struct {
	Key        string    `gorm:"column:key;primaryKey"`
	Activity   string    `gorm:"column:activity"`
	Output     []byte    `gorm:"column:output;type:jsonb"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (IdempotencyRecord) TableName() string { return "idempotency_records" }

// Report is a persisted evaluation/agent report row, written by the
// report.Save activity (spec.md §4.4) — e.g. an evaluation run's
// aggregate metrics, or a graph's per-execution summary.
type Report struct {
	ID         uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	ReportType string    `gorm:"column:report_type;index"`
	Payload    []byte    `gorm:"column:payload;type:jsonb"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (Report) TableName() string { return "reports" }
