package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicProvider_Determinism(t *testing.T) {
	p := NewDeterministicProvider("local-deterministic-v1", 1536)

	v1, err := p.Embed(context.Background(), []string{"hello world"})
	require.NoError(t, err)
	v2, err := p.Embed(context.Background(), []string{"hello world"})
	require.NoError(t, err)

	assert.Equal(t, v1, v2, "same model+text must yield a byte-identical vector")
	assert.Len(t, v1[0], 1536)
}

func TestDeterministicProvider_DifferentTextsDiffer(t *testing.T) {
	p := NewDeterministicProvider("local-deterministic-v1", 1536)

	vecs, err := p.Embed(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	assert.NotEqual(t, vecs[0], vecs[1])
}

func TestDeterministicProvider_OutputLengthMatchesInput(t *testing.T) {
	p := NewDeterministicProvider("m", 8)
	vecs, err := p.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.Len(t, v, 8)
	}
}

func TestCacheKey_SameInputSameKey(t *testing.T) {
	k1 := CacheKey("model-a", "text")
	k2 := CacheKey("model-a", "text")
	assert.Equal(t, k1, k2)

	k3 := CacheKey("model-b", "text")
	assert.NotEqual(t, k1, k3)
}

func TestChunk(t *testing.T) {
	texts := make([]string, 250)
	for i := range texts {
		texts[i] = "x"
	}
	batches := chunk(texts, 100)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 100)
	assert.Len(t, batches[1], 100)
	assert.Len(t, batches[2], 50)
}
