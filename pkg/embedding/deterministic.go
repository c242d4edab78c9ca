package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"

	"github.com/cogniflow/agentrt/pkg/taxonomy"
)

// DeterministicProvider derives a unit vector from a SHA-256 expansion of
// (modelID, text), with no external network dependency. It satisfies the
// Provider contract's determinism requirement exactly (same input always
// produces a byte-identical vector) and is the default provider for
// offline evaluation runs and tests.
type DeterministicProvider struct {
	model string
	dim   int
}

// NewDeterministicProvider constructs a DeterministicProvider with the
// given model identifier and output dimension.
func NewDeterministicProvider(model string, dim int) *DeterministicProvider {
	return &DeterministicProvider{model: model, dim: dim}
}

func (p *DeterministicProvider) Dimension() int { return p.dim }
func (p *DeterministicProvider) ModelID() string { return p.model }

// Embed implements Provider. It never returns an error (there is no
// external call to fail); a nil or empty texts slice yields an empty
// result, and texts are processed as given.
func (p *DeterministicProvider) Embed(_ context.Context, texts []string) ([]Vector, error) {
	out := make([]Vector, len(texts))
	for i, text := range texts {
		truncated, _ := truncateWords(text, maxInputTokens)
		out[i] = p.vectorFor(truncated)
	}
	return out, nil
}

// vectorFor expands a SHA-256 stream keyed on (model, text) into p.dim
// float32 components in [-1, 1], then L2-normalizes the result so cosine
// similarity behaves sensibly for near-duplicate inputs.
func (p *DeterministicProvider) vectorFor(text string) Vector {
	v := make(Vector, p.dim)
	seed := []byte(p.model + "\x00" + text)
	counter := uint32(0)
	var buf [4]byte
	idx := 0
	for idx < p.dim {
		binary.BigEndian.PutUint32(buf[:], counter)
		h := sha256.Sum256(append(seed, buf[:]...))
		for j := 0; j+4 <= len(h) && idx < p.dim; j += 4 {
			bits := binary.BigEndian.Uint32(h[j : j+4])
			// Map to [-1, 1].
			v[idx] = float32(int32(bits))/float32(1<<31)
			idx++
		}
		counter++
	}
	normalize(v)
	return v
}

func normalize(v Vector) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(math.Sqrt(sumSq))
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] = v[i] / norm
	}
}

// CacheKey computes the spec-mandated embedding cache key: the first 16
// bytes of sha256(modelID || "\x00" || text).
func CacheKey(modelID, text string) [16]byte {
	h := sha256.Sum256([]byte(modelID + "\x00" + text))
	var key [16]byte
	copy(key[:], h[:16])
	return key
}

// This blank reference keeps the taxonomy import in this file; the
// provider's errors elsewhere in the package use the shared taxonomy
// instead of ad-hoc error strings.
var _ = taxonomy.Transient
