// Package api implements the HTTP status+trigger surface (spec.md §6):
// health/component status, workflow start/query/cancel, schedule
// list/pause/unpause, the LLM-callable tool interface over the memory
// layer, and a GET /events WebSocket stream.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cogniflow/agentrt/pkg/activity"
	"github.com/cogniflow/agentrt/pkg/config"
	"github.com/cogniflow/agentrt/pkg/database"
	"github.com/cogniflow/agentrt/pkg/memory"
	"github.com/cogniflow/agentrt/pkg/metrics"
	"github.com/cogniflow/agentrt/pkg/workflow"
)

// Server is the HTTP API server.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server

	cfg       *config.Config
	db        *database.Client
	runtime   *workflow.Runtime
	pool      *workflow.WorkerPool
	mem       *memory.Memory
	library   *activity.Library
	metrics   *metrics.Metrics
	hub       *eventHub
	startedAt time.Time
}

// NewServer wires an API server over its component dependencies. pool and
// metricsCollector may be nil (a pod running as a pure scheduler/worker
// still serves /health and tool endpoints without a local worker pool to
// report on).
func NewServer(
	cfg *config.Config,
	db *database.Client,
	runtime *workflow.Runtime,
	pool *workflow.WorkerPool,
	mem *memory.Memory,
	library *activity.Library,
	metricsCollector *metrics.Metrics,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), bodyLimit(), securityHeaders())

	s := &Server{
		router:    router,
		cfg:       cfg,
		db:        db,
		runtime:   runtime,
		pool:      pool,
		mem:       mem,
		library:   library,
		metrics:   metricsCollector,
		hub:       newEventHub(),
		startedAt: time.Now(),
	}

	go s.hub.run()

	if metricsCollector != nil {
		metrics.RegisterHandler(router, "/metrics")
	}

	s.setupRoutes()
	return s
}

// PublishEvent pushes one event to every connected /events client. Used by
// cmd/agentrt's execution-status bridge to surface workflow completions
// the HTTP handlers themselves never observe.
func (s *Server) PublishEvent(eventType, workflowID, runID string, data interface{}) {
	s.hub.publish(wsEvent{Type: eventType, WorkflowID: workflowID, RunID: runID, Data: data})
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/actors/status", s.actorsStatusHandler)

	s.router.POST("/workflows/:type", s.startWorkflowHandler)
	s.router.GET("/workflows/:id", s.getWorkflowHandler)
	s.router.POST("/workflows/:id/cancel", s.cancelWorkflowHandler)

	s.router.GET("/schedules", s.listSchedulesHandler)
	s.router.POST("/schedules/:id/pause", s.pauseScheduleHandler)
	s.router.POST("/schedules/:id/unpause", s.unpauseScheduleHandler)

	tools := s.router.Group("/tools")
	tools.GET("", s.listToolsHandler)
	tools.POST("/search_memory", s.searchMemoryToolHandler)
	tools.POST("/save_to_memory", s.saveMemoryToolHandler)
	tools.POST("/get_memory_stats", s.memoryStatsToolHandler)

	s.router.GET("/events", s.eventsHandler)
}

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}
	return s.httpServer.ListenAndServe()
}

// StartWithListener serves on a pre-created listener — used by tests to
// bind a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.router}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server and stops the event hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.stop()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
