// Package activity implements the C4 activity library: the typed,
// idempotent units of work a workflow schedules (spec.md §4.4). Every
// activity here is a plain Go function over a typed input/output pair; no
// activity holds state across calls, and cross-activity data flows only
// through the caller's input/output, never through package-level state.
package activity

import (
	"context"
	"encoding/json"

	"github.com/cogniflow/agentrt/pkg/database"
	"github.com/cogniflow/agentrt/pkg/graph"
	"github.com/cogniflow/agentrt/pkg/memory"
	"github.com/cogniflow/agentrt/pkg/objectstore"
	"github.com/cogniflow/agentrt/pkg/social"
	"github.com/cogniflow/agentrt/pkg/taxonomy"
)

// Library bundles every capability an activity might need. pkg/workflow
// holds one Library and dispatches activity calls into it by name; graphs
// reach the same *memory.Memory instance directly (spec.md §4.3) so a
// graph.Run activity and a memory.* activity never disagree about cache
// or store state.
type Library struct {
	Memory    *memory.Memory
	Store     *objectstore.Store
	Poster    *social.Poster
	DB        *database.Client
	Graphs    map[string]GraphRunner
}

// GraphRunner erases a *graph.Graph[S]'s concrete state type behind a
// JSON-in/JSON-out boundary, so graph.Run can dispatch to any registered
// graph by name without a type switch per graph.
type GraphRunner func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)

// RunnerFor adapts a *graph.Graph[S] into a GraphRunner, round-tripping
// state through JSON at the activity boundary (the same boundary every
// other activity input/output crosses).
func RunnerFor[S any](g *graph.Graph[S]) GraphRunner {
	return func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
		var state S
		if len(input) > 0 {
			if err := json.Unmarshal(input, &state); err != nil {
				return nil, taxonomy.Wrap(taxonomy.SchemaViolation, "graph.run", err)
			}
		}
		result, err := g.Run(ctx, state)
		if err != nil {
			return nil, err
		}
		out, err := json.Marshal(result)
		if err != nil {
			return nil, taxonomy.Wrap(taxonomy.Internal, "graph.run", err)
		}
		return out, nil
	}
}

// MemorySaveInput is memory.Save's activity input.
type MemorySaveInput struct {
	Collection string         `json:"collection"`
	Payload    map[string]any `json:"payload"`
	TextFields []string       `json:"text_fields,omitempty"`
}

// MemorySaveOutput is memory.Save's activity output.
type MemorySaveOutput struct {
	ID string `json:"id"`
}

// MemorySave embeds and stores one memory (spec.md §4.2/§4.4).
func (l *Library) MemorySave(ctx context.Context, in MemorySaveInput) (MemorySaveOutput, error) {
	id, err := l.Memory.Save(ctx, in.Collection, in.Payload, in.TextFields)
	if err != nil {
		return MemorySaveOutput{}, err
	}
	return MemorySaveOutput{ID: id}, nil
}

// MemoryBatchSaveInput is memory.BatchSave's activity input.
type MemoryBatchSaveInput struct {
	Collection string           `json:"collection"`
	Payloads   []map[string]any `json:"payloads"`
	TextFields []string         `json:"text_fields,omitempty"`
}

// MemoryBatchSaveOutput is memory.BatchSave's activity output.
type MemoryBatchSaveOutput struct {
	IDs []string `json:"ids"`
}

// MemoryBatchSave saves multiple memories in one call.
func (l *Library) MemoryBatchSave(ctx context.Context, in MemoryBatchSaveInput) (MemoryBatchSaveOutput, error) {
	ids, err := l.Memory.BatchSave(ctx, in.Collection, in.Payloads, in.TextFields)
	if err != nil {
		return MemoryBatchSaveOutput{}, err
	}
	return MemoryBatchSaveOutput{IDs: ids}, nil
}

// MemorySearchInput is memory.Search's activity input.
type MemorySearchInput struct {
	Collection string          `json:"collection"`
	Query      string          `json:"query"`
	TopK       int             `json:"top_k"`
	Filters    []memory.Filter `json:"filters,omitempty"`
	Fields     []string        `json:"fields,omitempty"`
}

// MemorySearchOutput is memory.Search's activity output.
type MemorySearchOutput struct {
	Results []memory.SearchResult `json:"results"`
}

// MemorySearch returns the top-k nearest memories.
func (l *Library) MemorySearch(ctx context.Context, in MemorySearchInput) (MemorySearchOutput, error) {
	results, err := l.Memory.Search(ctx, in.Collection, in.Query, in.TopK, in.Filters, in.Fields)
	if err != nil {
		return MemorySearchOutput{}, err
	}
	return MemorySearchOutput{Results: results}, nil
}

// MemoryUpdateMetadataInput is memory.UpdateMetadata's activity input.
type MemoryUpdateMetadataInput struct {
	Collection string         `json:"collection"`
	ID         string         `json:"id"`
	Payload    map[string]any `json:"payload"`
}

// MemoryUpdateMetadata merges new field values into an existing memory.
func (l *Library) MemoryUpdateMetadata(ctx context.Context, in MemoryUpdateMetadataInput) error {
	return l.Memory.UpdateMetadata(ctx, in.Collection, in.ID, in.Payload)
}

// MemoryDeleteInput is memory.Delete's activity input.
type MemoryDeleteInput struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
}

// MemoryDelete removes a memory by id.
func (l *Library) MemoryDelete(ctx context.Context, in MemoryDeleteInput) error {
	return l.Memory.Delete(ctx, in.Collection, in.ID)
}

// MemoryStatsInput is memory.Stats's activity input.
type MemoryStatsInput struct {
	Collections []string `json:"collections"`
}

// MemoryStatsOutput is memory.Stats's activity output.
type MemoryStatsOutput struct {
	Stats []memory.CollectionStats `json:"stats"`
}

// MemoryStats reports per-collection counts and cache health.
func (l *Library) MemoryStats(ctx context.Context, in MemoryStatsInput) (MemoryStatsOutput, error) {
	stats, err := l.Memory.Stats(ctx, in.Collections)
	if err != nil {
		return MemoryStatsOutput{}, err
	}
	return MemoryStatsOutput{Stats: stats}, nil
}

// GraphRunInput is graph.Run's activity input: the named graph and its
// JSON-encoded initial state.
type GraphRunInput struct {
	GraphName string          `json:"graph_name"`
	State     json.RawMessage `json:"state"`
}

// GraphRun dispatches to a registered graph by name, round-tripping state
// through JSON (spec.md §4.3/§4.4: graphs run inside a single activity
// invocation, never spanning multiple workflow steps).
func (l *Library) GraphRun(ctx context.Context, in GraphRunInput) (json.RawMessage, error) {
	runner, ok := l.Graphs[in.GraphName]
	if !ok {
		return nil, taxonomy.New(taxonomy.SchemaViolation, "graph.run", "unknown graph "+in.GraphName)
	}
	return runner(ctx, in.State)
}

// StorageFetchObjectInput is storage.FetchObject's activity input.
type StorageFetchObjectInput struct {
	Key string `json:"key"`
}

// StorageFetchObjectOutput is storage.FetchObject's activity output.
type StorageFetchObjectOutput struct {
	Data []byte `json:"data"`
}

// StorageFetchObject fetches one object from the configured object store.
func (l *Library) StorageFetchObject(ctx context.Context, in StorageFetchObjectInput) (StorageFetchObjectOutput, error) {
	data, err := l.Store.FetchObject(ctx, in.Key)
	if err != nil {
		return StorageFetchObjectOutput{}, err
	}
	return StorageFetchObjectOutput{Data: data}, nil
}

// StorageListObjectsInput is storage.ListObjects's activity input.
type StorageListObjectsInput struct {
	Prefix string `json:"prefix"`
}

// StorageListObjectsOutput is storage.ListObjects's activity output.
type StorageListObjectsOutput struct {
	Objects []objectstore.ObjectInfo `json:"objects"`
}

// StorageListObjects lists objects under prefix.
func (l *Library) StorageListObjects(ctx context.Context, in StorageListObjectsInput) (StorageListObjectsOutput, error) {
	objs, err := l.Store.ListObjects(ctx, in.Prefix)
	if err != nil {
		return StorageListObjectsOutput{}, err
	}
	return StorageListObjectsOutput{Objects: objs}, nil
}

// PostSocialInput is post.Social's activity input. IdempotencyKey is
// caller-supplied (typically the workflow ID + a step name) so a retried
// attempt after a crash between "platform accepted the post" and
// "activity returned" never double-posts.
type PostSocialInput struct {
	Platform       string `json:"platform"`
	Brand          string `json:"brand"`
	Content        string `json:"content"`
	MediaURL       string `json:"media_url,omitempty"`
	IdempotencyKey string `json:"idempotency_key"`
}

// PostSocialOutput is post.Social's activity output.
type PostSocialOutput struct {
	PlatformPostID string `json:"platform_post_id"`
	AlreadyPosted  bool   `json:"already_posted"`
}

// PostSocial publishes a post, first checking the idempotency_records
// table so a retried activity attempt returns the prior result instead of
// posting again (spec.md §4.4).
func (l *Library) PostSocial(ctx context.Context, in PostSocialInput) (PostSocialOutput, error) {
	if in.IdempotencyKey != "" {
		prior, err := l.DB.FindIdempotencyRecord(ctx, in.IdempotencyKey)
		if err != nil {
			return PostSocialOutput{}, err
		}
		if prior != nil {
			var out PostSocialOutput
			if err := json.Unmarshal(prior.Output, &out); err != nil {
				return PostSocialOutput{}, taxonomy.Wrap(taxonomy.Internal, "post.social", err)
			}
			out.AlreadyPosted = true
			return out, nil
		}
	}

	result, err := l.Poster.Publish(ctx, in.Platform, social.Post{
		Brand:          in.Brand,
		Content:        in.Content,
		MediaURL:       in.MediaURL,
		IdempotencyKey: in.IdempotencyKey,
	})
	if err != nil {
		return PostSocialOutput{}, err
	}

	out := PostSocialOutput{PlatformPostID: result.PlatformPostID}
	if in.IdempotencyKey != "" {
		encoded, err := json.Marshal(out)
		if err == nil {
			_ = l.DB.SaveIdempotencyRecord(ctx, in.IdempotencyKey, "post.social", encoded)
		}
	}
	return out, nil
}

// ReportSaveInput is report.Save's activity input: an evaluation/agent
// report row to persist.
type ReportSaveInput struct {
	ReportType string          `json:"report_type"`
	Payload    json.RawMessage `json:"payload"`
}

// ReportSave writes an evaluation/agent report row via pkg/database.
func (l *Library) ReportSave(ctx context.Context, in ReportSaveInput) error {
	return l.DB.SaveReport(ctx, in.ReportType, in.Payload)
}
