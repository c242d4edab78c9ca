package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cogniflow/agentrt/pkg/database"
)

// healthHandler handles GET /health — a pure liveness check.
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{Status: "ok"})
}

// actorsStatusHandler handles GET /actors/status: per-component health for
// the memory layer, workflow runtime, and their backing stores (spec.md
// §6).
func (s *Server) actorsStatusHandler(c *gin.Context) {
	now := time.Now()
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	actors := []componentStatus{
		s.databaseStatus(ctx, now),
		s.workflowRuntimeStatus(now),
		s.memoryStatus(now),
	}

	c.JSON(http.StatusOK, actorsStatusResponse{Actors: actors, UpdatedAt: now})
}

func (s *Server) databaseStatus(ctx context.Context, now time.Time) componentStatus {
	status := "healthy"
	if s.db == nil {
		return componentStatus{Name: "database", Status: "down", LastActivity: now}
	}
	if _, err := database.Health(ctx, s.db.DB()); err != nil {
		status = "down"
	}
	return componentStatus{Name: "database", Status: status, LastActivity: now}
}

func (s *Server) workflowRuntimeStatus(now time.Time) componentStatus {
	if s.pool == nil {
		return componentStatus{Name: "workflow_runtime", Status: "degraded", LastActivity: now}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health := s.pool.Health(ctx)
	status := "healthy"
	if !health.IsHealthy || health.TotalWorkers == 0 {
		status = "degraded"
	}
	return componentStatus{Name: "workflow_runtime", Status: status, LastActivity: now}
}

func (s *Server) memoryStatus(now time.Time) componentStatus {
	if s.mem == nil {
		return componentStatus{Name: "memory", Status: "down", LastActivity: now}
	}
	return componentStatus{Name: "memory", Status: "healthy", LastActivity: now}
}
