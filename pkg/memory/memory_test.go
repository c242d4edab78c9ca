package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cogniflow/agentrt/pkg/config"
	"github.com/cogniflow/agentrt/pkg/embedding"
)

// countingEmbedder wraps DeterministicProvider and counts calls, so tests
// can assert the embedding cache actually avoids a re-embed on hit.
type countingEmbedder struct {
	*embedding.DeterministicProvider
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([]embedding.Vector, error) {
	c.calls++
	return c.DeterministicProvider.Embed(ctx, texts)
}

func newTestMemory(t *testing.T) (*Memory, *countingEmbedder) {
	t.Helper()
	cache := newTestCache(t, 1<<20)
	embedder := &countingEmbedder{DeterministicProvider: embedding.NewDeterministicProvider("test-model", 8)}
	m := New(nil, cache, embedder, config.DefaultCacheConfig(), nil)
	return m, embedder
}

func TestEmbeddingTextFor_ExplicitFields(t *testing.T) {
	payload := map[string]any{"vendor_name": "Acme Corp", "amount": 10.5, "note": "ignored"}
	text := embeddingTextFor(payload, []string{"vendor_name"})
	assert.Equal(t, "Acme Corp", text)
}

func TestEmbeddingTextFor_NoFieldsJoinsAllStrings(t *testing.T) {
	payload := map[string]any{"caption": "hello"}
	text := embeddingTextFor(payload, nil)
	assert.Equal(t, "hello", text)
}

func TestMemory_EmbedOne_CacheHitSkipsProvider(t *testing.T) {
	m, embedder := newTestMemory(t)
	ctx := context.Background()

	v1, err := m.embedOne(ctx, "hello world")
	require.NoError(t, err)
	assert.Equal(t, 1, embedder.calls)

	v2, err := m.embedOne(ctx, "hello world")
	require.NoError(t, err)
	assert.Equal(t, 1, embedder.calls, "second call for the same text must hit the cache")
	assert.Equal(t, v1, v2)
}

func TestMemory_EmbedOne_DifferentTextMisses(t *testing.T) {
	m, embedder := newTestMemory(t)
	ctx := context.Background()

	_, err := m.embedOne(ctx, "alpha")
	require.NoError(t, err)
	_, err = m.embedOne(ctx, "beta")
	require.NoError(t, err)

	assert.Equal(t, 2, embedder.calls)
}

func TestMemory_NilCacheStillEmbeds(t *testing.T) {
	embedder := &countingEmbedder{DeterministicProvider: embedding.NewDeterministicProvider("test-model", 8)}
	m := New(nil, nil, embedder, config.DefaultCacheConfig(), nil)

	v, err := m.embedOne(context.Background(), "no cache here")
	require.NoError(t, err)
	assert.Len(t, v, 8)
	assert.Equal(t, 1, embedder.calls)
}
