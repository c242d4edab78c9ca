// Package embedding implements the deterministic text→vector provider
// (C1): batching, a global concurrency limit, a token-per-minute budget,
// and retry-with-backoff classification of transient vs permanent
// provider errors.
package embedding

import (
	"context"
)

// Vector is a fixed-dimension embedding. Two vectors produced from the
// same (model, text) pair must be byte-identical — determinism is
// required for cache keying (spec.md §3/§4.1).
type Vector []float32

// Provider embeds batches of text into fixed-dimension vectors.
//
// Contract (spec.md §4.1): len(output) == len(input) and
// len(vector) == Dimension() for every vector. Each input text is
// truncated to maxInputTokens tokens before embedding; callers must not
// assume otherwise.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([]Vector, error)
	Dimension() int
	ModelID() string
}

// maxInputTokens is the per-text truncation limit, per spec.md §4.1.
const maxInputTokens = 8191

// maxBatchSize is the largest single underlying-call batch; larger
// requests are chunked.
const maxBatchSize = 100

// truncateWords approximates token truncation by word count, keeping at
// most maxWords whitespace-separated words and reporting whether it cut
// anything. Both providers in this package call it directly.
func truncateWords(text string, maxWords int) (string, bool) {
	words := splitWords(text)
	if len(words) <= maxWords {
		return text, false
	}
	truncated := words[:maxWords]
	out := ""
	for i, w := range truncated {
		if i > 0 {
			out += " "
		}
		out += w
	}
	return out, true
}

func splitWords(s string) []string {
	var words []string
	start := -1
	for i, r := range s {
		if r == ' ' || r == '\t' || r == '\n' {
			if start >= 0 {
				words = append(words, s[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		words = append(words, s[start:])
	}
	return words
}

// chunk splits texts into batches of at most maxBatchSize.
func chunk(texts []string, size int) [][]string {
	if size <= 0 {
		size = maxBatchSize
	}
	var out [][]string
	for i := 0; i < len(texts); i += size {
		end := i + size
		if end > len(texts) {
			end = len(texts)
		}
		out = append(out, texts[i:end])
	}
	return out
}
