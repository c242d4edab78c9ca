package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cogniflow/agentrt/pkg/activity"
)

// toolDescriptor describes one LLM-callable tool: enough for a model to
// decide when to call it and how to shape the arguments.
type toolDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Endpoint    string `json:"endpoint"`
}

var availableTools = []toolDescriptor{
	{Name: "search_memory", Description: "Search a memory collection for the nearest entries to a query.", Endpoint: "/tools/search_memory"},
	{Name: "save_to_memory", Description: "Embed and persist a payload into a memory collection.", Endpoint: "/tools/save_to_memory"},
	{Name: "get_memory_stats", Description: "Report per-collection entry counts and cache health.", Endpoint: "/tools/get_memory_stats"},
}

// listToolsHandler handles GET /tools: the tool catalog an LLM client
// fetches before it can call any of the handlers below.
func (s *Server) listToolsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, availableTools)
}

// searchMemoryToolHandler handles POST /tools/search_memory.
func (s *Server) searchMemoryToolHandler(c *gin.Context) {
	var in activity.MemorySearchInput
	if err := json.NewDecoder(c.Request.Body).Decode(&in); err != nil {
		badRequest(c, "invalid search_memory arguments: "+err.Error())
		return
	}

	out, err := s.library.MemorySearch(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// saveMemoryToolHandler handles POST /tools/save_to_memory.
func (s *Server) saveMemoryToolHandler(c *gin.Context) {
	var in activity.MemorySaveInput
	if err := json.NewDecoder(c.Request.Body).Decode(&in); err != nil {
		badRequest(c, "invalid save_to_memory arguments: "+err.Error())
		return
	}

	out, err := s.library.MemorySave(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// memoryStatsToolHandler handles POST /tools/get_memory_stats.
func (s *Server) memoryStatsToolHandler(c *gin.Context) {
	var in activity.MemoryStatsInput
	if c.Request.ContentLength != 0 {
		if err := json.NewDecoder(c.Request.Body).Decode(&in); err != nil {
			badRequest(c, "invalid get_memory_stats arguments: "+err.Error())
			return
		}
	}

	out, err := s.library.MemoryStats(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
