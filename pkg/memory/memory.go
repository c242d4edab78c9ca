// Package memory implements the two-tier semantic memory layer (C2):
// save/batch_save/search/update_metadata/delete/stats over named
// collections, backed by an embedded disposable cache (pkg/memory's
// Cache) in front of a Weaviate system of record (pkg/memory's
// VectorStore). A cold or unreachable cache degrades latency, never
// correctness (spec.md §4.2/§8).
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cogniflow/agentrt/pkg/config"
	"github.com/cogniflow/agentrt/pkg/embedding"
	"github.com/cogniflow/agentrt/pkg/metrics"
)

// Record is one memory: an embedded payload plus the metadata every
// collection carries regardless of its declared schema.
type Record struct {
	ID        string
	Payload   map[string]any
	CreatedAt time.Time
}

// SearchResult is one ranked hit from search().
type SearchResult struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// Memory is the C2 entry point: one instance serves every configured
// collection.
type Memory struct {
	store    *VectorStore
	cache    *Cache
	embedder embedding.Provider
	cacheCfg *config.CacheConfig
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New constructs a Memory layer. cache may be nil (equivalent to an
// always-miss cache) when no cache directory is configured.
func New(store *VectorStore, cache *Cache, embedder embedding.Provider, cacheCfg *config.CacheConfig, logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheCfg == nil {
		cacheCfg = config.DefaultCacheConfig()
	}
	return &Memory{store: store, cache: cache, embedder: embedder, cacheCfg: cacheCfg, logger: logger}
}

// SetMetrics attaches a Prometheus collector this Memory and its cache
// tier report into. Optional.
func (m *Memory) SetMetrics(mt *metrics.Metrics) {
	m.metrics = mt
	m.cache.SetMetrics(mt)
}

// embedOne embeds a single text, consulting the embedding cache first and
// writing through to it after a miss.
func (m *Memory) embedOne(ctx context.Context, text string) ([]float32, error) {
	key := embedding.CacheKey(m.embedder.ModelID(), text)
	if m.cache != nil {
		if raw, ok := m.cache.GetEmbedding(ctx, key); ok {
			var vec []float32
			if err := json.Unmarshal(raw, &vec); err == nil {
				return vec, nil
			}
			m.logger.Warn("discarding corrupt cached embedding", "key", fmt.Sprintf("%x", key))
		}
	}

	vecs, err := m.embedder.Embed(ctx, []string{text})
	if m.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		m.metrics.EmbeddingCalls.WithLabelValues(m.embedder.ModelID(), outcome).Inc()
	}
	if err != nil {
		return nil, err
	}
	vec := []float32(vecs[0])

	if m.cache != nil {
		if raw, err := json.Marshal(vec); err == nil {
			m.cache.SetEmbedding(ctx, key, raw, m.cacheCfg.EmbeddingTTL)
		}
	}
	return vec, nil
}

// embeddingTextFor derives the text that gets embedded from a payload: the
// concatenation of every string-valued field, in schema-declared field
// order is not required by spec.md §4.2, so fields are joined in the
// iteration order supplied by the caller via textFields.
func embeddingTextFor(payload map[string]any, textFields []string) string {
	if len(textFields) == 0 {
		// No explicit text fields: fall back to every string field,
		// which keeps save() usable for ad-hoc payloads in tests.
		out := ""
		for _, v := range payload {
			if s, ok := v.(string); ok {
				if out != "" {
					out += " "
				}
				out += s
			}
		}
		return out
	}
	out := ""
	for _, f := range textFields {
		if v, ok := payload[f]; ok {
			if s, ok := v.(string); ok {
				if out != "" {
					out += " "
				}
				out += s
			}
		}
	}
	return out
}

// Save embeds and stores one memory in collection, returning its
// generated ID. textFields names the payload fields concatenated to form
// the text that gets embedded; pass nil to embed every string field.
func (m *Memory) Save(ctx context.Context, collection string, payload map[string]any, textFields []string) (string, error) {
	id := uuid.NewString()
	text := embeddingTextFor(payload, textFields)
	vec, err := m.embedOne(ctx, text)
	if err != nil {
		return "", err
	}
	if err := m.store.Save(ctx, collection, id, vec, payload); err != nil {
		return "", err
	}
	if m.cache != nil {
		_ = m.cache.InvalidateQueryNamespace(ctx)
	}
	return id, nil
}

// BatchSave saves multiple memories in one call, embedding concurrently
// via the underlying provider's own batching.
func (m *Memory) BatchSave(ctx context.Context, collection string, payloads []map[string]any, textFields []string) ([]string, error) {
	texts := make([]string, len(payloads))
	for i, p := range payloads {
		texts[i] = embeddingTextFor(p, textFields)
	}

	var vecs []embedding.Vector
	var err error
	if len(texts) > 0 {
		vecs, err = m.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}
	}

	ids := make([]string, len(payloads))
	for i, p := range payloads {
		id := uuid.NewString()
		if err := m.store.Save(ctx, collection, id, []float32(vecs[i]), p); err != nil {
			return nil, err
		}
		ids[i] = id
	}
	if m.cache != nil && len(ids) > 0 {
		_ = m.cache.InvalidateQueryNamespace(ctx)
	}
	return ids, nil
}

// Search embeds queryText and returns the top-k nearest memories in
// collection, filtered by filters (ANDed together). Results are cached
// under the query TTL; a cache hit skips both embedding and the vector
// store round-trip.
func (m *Memory) Search(ctx context.Context, collection, queryText string, k int, filters []Filter, fields []string) ([]SearchResult, error) {
	searchStart := time.Now()
	if m.metrics != nil {
		defer func() {
			m.metrics.MemorySearchLatency.WithLabelValues(collection).Observe(time.Since(searchStart).Seconds())
		}()
	}

	queryKey := embedding.CacheKey(m.embedder.ModelID()+"|"+collection, fmt.Sprintf("%s|%d|%v", queryText, k, filters))
	if m.cache != nil {
		if raw, ok := m.cache.GetQuery(ctx, queryKey); ok {
			var cached []SearchResult
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
		}
	}

	vec, err := m.embedOne(ctx, queryText)
	if err != nil {
		return nil, err
	}

	matches, err := m.store.Search(ctx, collection, vec, k, filters, fields)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, len(matches))
	for i, match := range matches {
		results[i] = SearchResult{ID: match.ID, Score: match.Score, Payload: match.Payload}
	}

	if m.cache != nil {
		if raw, err := json.Marshal(results); err == nil {
			m.cache.SetQuery(ctx, queryKey, raw, m.cacheCfg.QueryTTL)
		}
	}
	return results, nil
}

// UpdateMetadata merges new field values into an existing memory without
// re-embedding it. Updating a field that participates in textFields does
// not refresh the stored vector — spec.md §4.2 scopes update_metadata to
// metadata only; re-save the record to re-embed it.
func (m *Memory) UpdateMetadata(ctx context.Context, collection, id string, payload map[string]any) error {
	if err := m.store.UpdateMetadata(ctx, collection, id, payload); err != nil {
		return err
	}
	if m.cache != nil {
		_ = m.cache.InvalidateQueryNamespace(ctx)
	}
	return nil
}

// Delete removes a memory by id.
func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	if err := m.store.Delete(ctx, collection, id); err != nil {
		return err
	}
	if m.cache != nil {
		_ = m.cache.InvalidateQueryNamespace(ctx)
	}
	return nil
}
