package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cogniflow/agentrt/pkg/database"
)

// startWorkflowHandler handles POST /workflows/:type.
func (s *Server) startWorkflowHandler(c *gin.Context) {
	workflowType := c.Param("type")

	var input json.RawMessage
	if c.Request.ContentLength != 0 {
		raw, err := c.GetRawData()
		if err != nil {
			badRequest(c, "failed to read request body")
			return
		}
		if len(raw) > 0 {
			if !json.Valid(raw) {
				badRequest(c, "request body is not valid JSON")
				return
			}
			input = raw
		}
	}

	workflowID := uuid.NewString()
	runID, err := s.runtime.Start(c.Request.Context(), workflowID, workflowType, input)
	if err != nil {
		respondError(c, err)
		return
	}

	s.hub.publish(wsEvent{Type: "WorkflowStarted", WorkflowID: workflowID, RunID: runID, Data: gin.H{"workflow_type": workflowType}})
	c.JSON(http.StatusOK, startWorkflowResponse{WorkflowID: workflowID, RunID: runID})
}

// getWorkflowHandler handles GET /workflows/:id: the latest run of the
// named workflow, with its event history condensed into per-kind counts.
func (s *Server) getWorkflowHandler(c *gin.Context) {
	workflowID := c.Param("id")

	var exec database.WorkflowExecution
	err := s.db.WithContext(c.Request.Context()).
		Where("workflow_id = ?", workflowID).
		Order("started_at DESC").
		First(&exec).Error
	if err != nil {
		notFound(c, "unknown workflow "+workflowID)
		return
	}

	summary, err := s.summarizeHistory(c.Request.Context(), exec.WorkflowID, exec.RunID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, getWorkflowResponse{
		WorkflowID:     exec.WorkflowID,
		RunID:          exec.RunID,
		Type:           exec.Type,
		Status:         exec.Status,
		ErrorKind:      exec.ErrorKind,
		ErrorMessage:   exec.ErrorMsg,
		HistorySummary: summary,
	})
}

// summarizeHistory condenses one execution's event log into per-kind
// counts rather than returning the full history over HTTP.
func (s *Server) summarizeHistory(ctx context.Context, workflowID, runID string) (historySummary, error) {
	var events []database.WorkflowEvent
	err := s.db.WithContext(ctx).
		Where("workflow_id = ? AND run_id = ?", workflowID, runID).
		Order("seq ASC").
		Find(&events).Error
	if err != nil {
		return historySummary{}, err
	}

	summary := historySummary{KindCounts: make(map[string]int, len(events))}
	for _, e := range events {
		summary.EventCount++
		summary.KindCounts[e.Kind]++
		ts := e.Timestamp
		if summary.LastEventAt == nil || ts.After(*summary.LastEventAt) {
			summary.LastEventAt = &ts
		}
	}
	return summary, nil
}

// cancelWorkflowHandler handles POST /workflows/:id/cancel.
func (s *Server) cancelWorkflowHandler(c *gin.Context) {
	workflowID := c.Param("id")

	var exec database.WorkflowExecution
	err := s.db.WithContext(c.Request.Context()).
		Where("workflow_id = ? AND status = ?", workflowID, "running").
		Order("started_at DESC").
		First(&exec).Error
	if err != nil {
		c.JSON(http.StatusOK, cancelWorkflowResponse{Cancelled: false})
		return
	}

	if err := s.runtime.RequestCancel(c.Request.Context(), exec.WorkflowID, exec.RunID); err != nil {
		respondError(c, err)
		return
	}

	if s.pool != nil {
		s.pool.Cancel(exec.WorkflowID + "/" + exec.RunID)
	}

	c.JSON(http.StatusOK, cancelWorkflowResponse{Cancelled: true})
}
