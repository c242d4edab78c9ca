// Package social implements the post.social activity (spec.md §4.4): an
// idempotent HTTP post to a configured social-media platform endpoint.
package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cogniflow/agentrt/pkg/config"
	"github.com/cogniflow/agentrt/pkg/taxonomy"
)

// Post is one piece of content to publish.
type Post struct {
	Brand         string
	Content       string
	MediaURL      string
	IdempotencyKey string
}

// Result is what the platform returned for a successful post.
type Result struct {
	PlatformPostID string
}

// Poster publishes posts to configured social-media platforms over HTTP.
// The idempotency key is forwarded as a header; most platform APIs honor
// it directly, and pkg/activity additionally checks the
// IdempotencyRecord table before calling Publish at all (spec.md §4.4).
type Poster struct {
	platforms map[string]platform
	client    *http.Client
}

type platform struct {
	token   string
	baseURL string
}

// New builds a Poster for every configured platform, resolving each
// platform's bearer token from the environment variable its
// SocialPlatformConfig.TokenEnv names.
func New(cfg *config.SocialConfig, tokenLookup func(envVar string) string) *Poster {
	p := &Poster{platforms: make(map[string]platform), client: &http.Client{Timeout: 15 * time.Second}}
	if cfg == nil {
		return p
	}
	for name, pc := range cfg.Platforms {
		p.platforms[name] = platform{token: tokenLookup(pc.TokenEnv), baseURL: pc.BaseURL}
	}
	return p
}

type postBody struct {
	Brand    string `json:"brand"`
	Content  string `json:"content"`
	MediaURL string `json:"media_url,omitempty"`
}

type postResponse struct {
	ID string `json:"id"`
}

// Publish posts content to platform. Calling Publish twice with the same
// IdempotencyKey is expected to be safe: the platform API either
// deduplicates by the header itself, or the caller has already checked
// pkg/database's IdempotencyRecord table and skips the call entirely.
func (p *Poster) Publish(ctx context.Context, platformName string, post Post) (Result, error) {
	plat, ok := p.platforms[platformName]
	if !ok {
		return Result{}, taxonomy.New(taxonomy.SchemaViolation, "social.publish", fmt.Sprintf("unknown platform %q", platformName))
	}

	body, err := json.Marshal(postBody{Brand: post.Brand, Content: post.Content, MediaURL: post.MediaURL})
	if err != nil {
		return Result{}, taxonomy.Wrap(taxonomy.Internal, "social.publish", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, plat.baseURL+"/posts", bytes.NewReader(body))
	if err != nil {
		return Result{}, taxonomy.Wrap(taxonomy.Internal, "social.publish", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+plat.token)
	if post.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", post.IdempotencyKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Result{}, taxonomy.Wrap(taxonomy.Transient, "social.publish", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return Result{}, taxonomy.New(taxonomy.RateLimited, "social.publish", "rate limited")
	}
	if resp.StatusCode >= 500 {
		return Result{}, taxonomy.New(taxonomy.Transient, "social.publish", fmt.Sprintf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return Result{}, taxonomy.New(taxonomy.SchemaViolation, "social.publish", fmt.Sprintf("status %d", resp.StatusCode))
	}

	var parsed postResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{}, taxonomy.Wrap(taxonomy.Internal, "social.publish", err)
	}
	return Result{PlatformPostID: parsed.ID}, nil
}
