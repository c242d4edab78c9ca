package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cogniflow/agentrt/pkg/database"
	"github.com/cogniflow/agentrt/pkg/workflow/cron"
)

// listSchedulesHandler handles GET /schedules.
func (s *Server) listSchedulesHandler(c *gin.Context) {
	var records []database.ScheduleRecord
	if err := s.db.WithContext(c.Request.Context()).Order("id ASC").Find(&records).Error; err != nil {
		respondError(c, err)
		return
	}

	out := make([]scheduleResponse, 0, len(records))
	for _, r := range records {
		out = append(out, scheduleResponse{
			ID:             r.ID,
			CronExpression: r.CronExpression,
			WorkflowType:   r.WorkflowType,
			Paused:         r.Paused,
			OverlapPolicy:  r.OverlapPolicy,
			Note:           r.Note,
			LastFireAt:     r.LastFireAt,
		})
	}
	c.JSON(http.StatusOK, out)
}

// pauseScheduleHandler handles POST /schedules/:id/pause.
func (s *Server) pauseScheduleHandler(c *gin.Context) {
	s.setSchedulePaused(c, true)
}

// unpauseScheduleHandler handles POST /schedules/:id/unpause.
func (s *Server) unpauseScheduleHandler(c *gin.Context) {
	s.setSchedulePaused(c, false)
}

func (s *Server) setSchedulePaused(c *gin.Context, paused bool) {
	scheduleID := c.Param("id")

	var count int64
	if err := s.db.WithContext(c.Request.Context()).Model(&database.ScheduleRecord{}).
		Where("id = ?", scheduleID).Count(&count).Error; err != nil {
		respondError(c, err)
		return
	}
	if count == 0 {
		notFound(c, "unknown schedule "+scheduleID)
		return
	}

	if err := cron.Pause(c.Request.Context(), s.db, scheduleID, paused); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pauseScheduleResponse{Paused: paused})
}
