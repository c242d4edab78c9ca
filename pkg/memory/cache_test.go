package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, budget int64) *Cache {
	t.Helper()
	c, err := NewCache(t.TempDir(), budget, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCache_EmbeddingRoundTrip(t *testing.T) {
	c := newTestCache(t, 1<<20)
	ctx := context.Background()
	key := [16]byte{1, 2, 3}

	_, ok := c.GetEmbedding(ctx, key)
	assert.False(t, ok, "unset key must miss")

	c.SetEmbedding(ctx, key, []byte("vector-bytes"), time.Hour)
	got, ok := c.GetEmbedding(ctx, key)
	require.True(t, ok)
	assert.Equal(t, []byte("vector-bytes"), got)
}

func TestCache_QueryNamespaceIsolatedFromEmbeddings(t *testing.T) {
	c := newTestCache(t, 1<<20)
	ctx := context.Background()
	key := [16]byte{9, 9, 9}

	c.SetEmbedding(ctx, key, []byte("embed"), time.Hour)
	c.SetQuery(ctx, key, []byte("query"), time.Hour)

	e, ok := c.GetEmbedding(ctx, key)
	require.True(t, ok)
	assert.Equal(t, []byte("embed"), e)

	q, ok := c.GetQuery(ctx, key)
	require.True(t, ok)
	assert.Equal(t, []byte("query"), q)
}

func TestCache_InvalidateQueryNamespace(t *testing.T) {
	c := newTestCache(t, 1<<20)
	ctx := context.Background()
	key := [16]byte{5}

	c.SetQuery(ctx, key, []byte("stale"), time.Hour)
	require.NoError(t, c.InvalidateQueryNamespace(ctx))

	_, ok := c.GetQuery(ctx, key)
	assert.False(t, ok)
}

func TestCache_EvictsLeastRecentlyUsedOverBudget(t *testing.T) {
	// Budget fits roughly one ~10-byte entry; writing a second must evict
	// the first once it is no longer the most recently touched.
	c := newTestCache(t, 12)
	ctx := context.Background()
	k1, k2 := [16]byte{1}, [16]byte{2}

	c.SetEmbedding(ctx, k1, []byte("0123456789"), time.Hour)
	c.SetEmbedding(ctx, k2, []byte("9876543210"), time.Hour)

	_, ok1 := c.GetEmbedding(ctx, k1)
	_, ok2 := c.GetEmbedding(ctx, k2)
	assert.False(t, ok1, "oldest entry should have been evicted")
	assert.True(t, ok2, "most recently written entry should survive")
}

func TestCache_Stats(t *testing.T) {
	c := newTestCache(t, 1<<20)
	ctx := context.Background()
	key := [16]byte{7}

	c.SetEmbedding(ctx, key, []byte("v"), time.Hour)
	_, _ = c.GetEmbedding(ctx, key)
	_, _ = c.GetEmbedding(ctx, [16]byte{99})

	stats, reachable := c.Stats()
	require.True(t, reachable)
	assert.Equal(t, 1, stats.Entries)
	assert.InDelta(t, 0.5, stats.HitRate, 0.001)
}

func TestCache_NilCacheIsAlwaysMiss(t *testing.T) {
	var c *Cache
	_, ok := c.GetEmbedding(context.Background(), [16]byte{})
	assert.False(t, ok)

	stats, reachable := c.Stats()
	assert.False(t, reachable)
	assert.Zero(t, stats)
}
