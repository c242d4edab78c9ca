package api

import "time"

// healthResponse is returned by GET /health.
type healthResponse struct {
	Status string `json:"status"`
}

// componentStatus is one entry in GET /actors/status's actors array.
type componentStatus struct {
	Name         string    `json:"name"`
	Status       string    `json:"status"` // healthy | degraded | down
	LastActivity time.Time `json:"last_activity"`
}

// actorsStatusResponse is returned by GET /actors/status.
type actorsStatusResponse struct {
	Actors    []componentStatus `json:"actors"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// startWorkflowResponse is returned by POST /workflows/:type.
type startWorkflowResponse struct {
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
}

// historySummary condenses a workflow run's event history into per-kind
// counts, rather than returning the full event log over HTTP.
type historySummary struct {
	EventCount  int            `json:"event_count"`
	KindCounts  map[string]int `json:"kind_counts"`
	LastEventAt *time.Time     `json:"last_event_at,omitempty"`
}

// getWorkflowResponse is returned by GET /workflows/:id.
type getWorkflowResponse struct {
	WorkflowID     string         `json:"workflow_id"`
	RunID          string         `json:"run_id"`
	Type           string         `json:"type"`
	Status         string         `json:"status"`
	ErrorKind      string         `json:"error_kind,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	HistorySummary historySummary `json:"history_summary"`
}

// cancelWorkflowResponse is returned by POST /workflows/:id/cancel.
type cancelWorkflowResponse struct {
	Cancelled bool `json:"cancelled"`
}

// scheduleResponse is one entry in GET /schedules's response sequence.
type scheduleResponse struct {
	ID             string     `json:"id"`
	CronExpression string     `json:"cron_expression"`
	WorkflowType   string     `json:"workflow_type"`
	Paused         bool       `json:"paused"`
	OverlapPolicy  string     `json:"overlap_policy"`
	Note           string     `json:"note,omitempty"`
	LastFireAt     *time.Time `json:"last_fire_at,omitempty"`
}

// pauseScheduleResponse is returned by POST /schedules/:id/pause and
// /schedules/:id/unpause.
type pauseScheduleResponse struct {
	Paused bool `json:"paused"`
}

// errorResponse is the body of every non-2xx JSON response.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
