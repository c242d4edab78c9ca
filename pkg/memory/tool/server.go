// Package tool exposes the memory layer (pkg/memory) as MCP tools:
// search_memory, save_to_memory, and get_memory_stats (spec.md §4.2/§6).
// Grounded on pkg/mcp/client.go's use of
// github.com/modelcontextprotocol/go-sdk/mcp, flipped from the client
// role (connecting out to MCP servers) to the server role (this process
// exposing tools other agents call into).
package tool

import (
	"context"
	"fmt"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/cogniflow/agentrt/pkg/memory"
)

// Server exposes memory operations as MCP tools over an *mcpsdk.Server.
type Server struct {
	mem    *memory.Memory
	logger *slog.Logger
	mcp    *mcpsdk.Server
}

// New builds the MCP server and registers its tools. appName/appVersion
// identify this process to connecting MCP clients.
func New(mem *memory.Memory, appName, appVersion string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{mem: mem, logger: logger}
	s.mcp = mcpsdk.NewServer(&mcpsdk.Implementation{Name: appName, Version: appVersion}, nil)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "search_memory",
		Description: "Search a memory collection for the k most similar saved records, optionally filtered by metadata.",
	}, s.searchMemory)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "save_to_memory",
		Description: "Embed and save a record into a memory collection.",
	}, s.saveToMemory)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "get_memory_stats",
		Description: "Report memory counts and cache hit rate for one or more collections.",
	}, s.getMemoryStats)

	return s
}

// Run serves tool calls over transport until ctx is canceled.
func (s *Server) Run(ctx context.Context, transport mcpsdk.Transport) error {
	session, err := s.mcp.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcp server connect: %w", err)
	}
	return session.Wait()
}

// SearchMemoryInput is the search_memory tool's argument shape.
type SearchMemoryInput struct {
	Collection string         `json:"collection" jsonschema:"the collection to search"`
	Query      string         `json:"query" jsonschema:"free text to embed and search for"`
	K          int            `json:"k,omitempty" jsonschema:"number of results, default 5"`
	Filters    []FilterInput  `json:"filters,omitempty" jsonschema:"metadata filters, ANDed together"`
	Fields     []string       `json:"fields,omitempty" jsonschema:"payload fields to return; all fields if omitted"`
}

// FilterInput mirrors memory.Filter over the wire.
type FilterInput struct {
	Field  string `json:"field"`
	Op     string `json:"op" jsonschema:"one of eq,neq,in,gte,lte,gt,lt"`
	Value  any    `json:"value,omitempty"`
	Values []any  `json:"values,omitempty"`
}

// SearchMemoryOutput is the search_memory tool's result shape.
type SearchMemoryOutput struct {
	Results []SearchHit `json:"results"`
}

// SearchHit is one ranked search result.
type SearchHit struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

func (s *Server) searchMemory(ctx context.Context, _ *mcpsdk.CallToolRequest, in SearchMemoryInput) (*mcpsdk.CallToolResult, SearchMemoryOutput, error) {
	k := in.K
	if k <= 0 {
		k = 5
	}
	filters := make([]memory.Filter, len(in.Filters))
	for i, f := range in.Filters {
		filters[i] = memory.Filter{Field: f.Field, Op: memory.FilterOp(f.Op), Value: f.Value, Values: f.Values}
	}

	results, err := s.mem.Search(ctx, in.Collection, in.Query, k, filters, in.Fields)
	if err != nil {
		s.logger.Warn("search_memory failed", "collection", in.Collection, "error", err)
		return nil, SearchMemoryOutput{}, err
	}

	hits := make([]SearchHit, len(results))
	for i, r := range results {
		hits[i] = SearchHit{ID: r.ID, Score: r.Score, Payload: r.Payload}
	}
	return nil, SearchMemoryOutput{Results: hits}, nil
}

// SaveToMemoryInput is the save_to_memory tool's argument shape.
type SaveToMemoryInput struct {
	Collection string         `json:"collection"`
	Payload    map[string]any `json:"payload" jsonschema:"fields to store, must match the collection's declared schema"`
	TextFields []string       `json:"text_fields,omitempty" jsonschema:"payload fields concatenated to form the embedded text; all string fields if omitted"`
}

// SaveToMemoryOutput is the save_to_memory tool's result shape.
type SaveToMemoryOutput struct {
	ID string `json:"id"`
}

func (s *Server) saveToMemory(ctx context.Context, _ *mcpsdk.CallToolRequest, in SaveToMemoryInput) (*mcpsdk.CallToolResult, SaveToMemoryOutput, error) {
	id, err := s.mem.Save(ctx, in.Collection, in.Payload, in.TextFields)
	if err != nil {
		s.logger.Warn("save_to_memory failed", "collection", in.Collection, "error", err)
		return nil, SaveToMemoryOutput{}, err
	}
	return nil, SaveToMemoryOutput{ID: id}, nil
}

// GetMemoryStatsInput is the get_memory_stats tool's argument shape.
type GetMemoryStatsInput struct {
	Collections []string `json:"collections" jsonschema:"collection names to report on"`
}

// GetMemoryStatsOutput is the get_memory_stats tool's result shape.
type GetMemoryStatsOutput struct {
	Stats []memory.CollectionStats `json:"stats"`
}

func (s *Server) getMemoryStats(ctx context.Context, _ *mcpsdk.CallToolRequest, in GetMemoryStatsInput) (*mcpsdk.CallToolResult, GetMemoryStatsOutput, error) {
	stats, err := s.mem.Stats(ctx, in.Collections)
	if err != nil {
		s.logger.Warn("get_memory_stats failed", "error", err)
		return nil, GetMemoryStatsOutput{}, err
	}
	return nil, GetMemoryStatsOutput{Stats: stats}, nil
}
