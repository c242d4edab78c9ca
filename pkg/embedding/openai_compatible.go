package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/cogniflow/agentrt/pkg/taxonomy"
)

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// OpenAICompatibleProvider calls an OpenAI-compatible embeddings endpoint
// (OpenAI itself, or a local server exposing the same shape). Concurrency
// is capped (spec.md §5: "global concurrency limit, default 10 in-flight
// requests") and, when WithTokensPerMinute is given, outbound calls are
// token-bucket limited (no limiter is set otherwise); transient
// failures (5xx, 429) are retried with exponential backoff and jitter,
// capped at 5 attempts per spec.md §4.1.
//
// Grounded on AleutianAI-AleutianFOSS's routing.ToolEmbeddingCache, which
// calls an embeddings HTTP endpoint with a bounded concurrent warm-up
// (errgroup + semaphore) and degrades gracefully on failure; this
// provider keeps that concurrency shape but treats failures per the
// taxonomy's Transient/Permanent split instead of silently degrading.
type OpenAICompatibleProvider struct {
	baseURL string
	apiKey  string
	model   string
	dim     int

	client *http.Client
	sem    chan struct{}
	limiter *rate.Limiter
	maxRetries int
	logger  *slog.Logger
}

// Option configures an OpenAICompatibleProvider.
type Option func(*OpenAICompatibleProvider)

// WithMaxConcurrency bounds the number of in-flight HTTP calls.
func WithMaxConcurrency(n int) Option {
	return func(p *OpenAICompatibleProvider) {
		if n > 0 {
			p.sem = make(chan struct{}, n)
		}
	}
}

// WithTokensPerMinute configures the token-bucket limiter's refill rate.
func WithTokensPerMinute(tpm int) Option {
	return func(p *OpenAICompatibleProvider) {
		if tpm > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(float64(tpm)/60.0), tpm)
		}
	}
}

// WithMaxRetries overrides the default retry attempt cap.
func WithMaxRetries(n int) Option {
	return func(p *OpenAICompatibleProvider) {
		if n > 0 {
			p.maxRetries = n
		}
	}
}

// WithHTTPClient overrides the default HTTP client (tests inject one
// pointed at an httptest.Server).
func WithHTTPClient(c *http.Client) Option {
	return func(p *OpenAICompatibleProvider) { p.client = c }
}

// NewOpenAICompatibleProvider constructs a provider targeting baseURL
// (e.g. "https://api.openai.com/v1/embeddings" or a local server).
func NewOpenAICompatibleProvider(baseURL, apiKey, model string, dim int, opts ...Option) *OpenAICompatibleProvider {
	p := &OpenAICompatibleProvider{
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		dim:        dim,
		client:     &http.Client{Timeout: 30 * time.Second},
		sem:        make(chan struct{}, 10),
		maxRetries: 5,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *OpenAICompatibleProvider) Dimension() int  { return p.dim }
func (p *OpenAICompatibleProvider) ModelID() string { return p.model }

// Embed implements Provider, chunking texts into batches of at most
// maxBatchSize and running chunks concurrently up to the configured
// semaphore width.
func (p *OpenAICompatibleProvider) Embed(ctx context.Context, texts []string) ([]Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	batches := chunk(texts, maxBatchSize)
	results := make([][]Vector, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			p.sem <- struct{}{}
			defer func() { <-p.sem }()

			vecs, err := p.embedBatch(gctx, batch)
			if err != nil {
				return err
			}
			results[i] = vecs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Vector, 0, len(texts))
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func (p *OpenAICompatibleProvider) embedBatch(ctx context.Context, batch []string) ([]Vector, error) {
	truncated := make([]string, len(batch))
	for i, t := range batch {
		truncated[i], _ = truncateWords(t, maxInputTokens)
	}

	var out []Vector
	op := func() error {
		if p.limiter != nil {
			if err := p.limiter.WaitN(ctx, len(truncated)); err != nil {
				return backoff.Permanent(taxonomy.Wrap(taxonomy.Transient, "embedding.embed", err))
			}
		}

		vecs, err := p.doRequest(ctx, truncated)
		if err != nil {
			if te, ok := err.(*taxonomy.Error); ok && te.Kind != taxonomy.Transient && te.Kind != taxonomy.RateLimited {
				return backoff.Permanent(err)
			}
			return err
		}
		out = vecs
		return nil
	}

	// maxRetries counts attempts; WithMaxRetries counts retries after the first.
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(p.maxRetries-1))
	bo = backoff.WithContext(bo, ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *OpenAICompatibleProvider) doRequest(ctx context.Context, texts []string) ([]Vector, error) {
	body, err := json.Marshal(embedRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, taxonomy.Wrap(taxonomy.Internal, "embedding.embed", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, taxonomy.Wrap(taxonomy.Internal, "embedding.embed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, taxonomy.Wrap(taxonomy.Transient, "embedding.embed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, taxonomy.Wrap(taxonomy.Transient, "embedding.embed", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, taxonomy.New(taxonomy.RateLimited, "embedding.embed", string(respBody))
	case resp.StatusCode >= 500:
		return nil, taxonomy.New(taxonomy.Transient, "embedding.embed", fmt.Sprintf("status %d: %s", resp.StatusCode, respBody))
	case resp.StatusCode >= 400:
		return nil, taxonomy.New(taxonomy.SchemaViolation, "embedding.embed", fmt.Sprintf("status %d: %s", resp.StatusCode, respBody))
	}

	var parsed embedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, taxonomy.Wrap(taxonomy.Internal, "embedding.embed", err)
	}

	out := make([]Vector, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(out) {
			continue
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
