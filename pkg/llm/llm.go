// Package llm wraps the external LLM collaborator the graph runtime calls
// into as llm_complete (spec.md §4.3/§6): a single typed entry point over
// whichever provider tmc/langchaingo supports, selected by configuration.
//
// No repository in the retrieved corpus calls langchaingo directly — it
// surfaces only in other_examples/ doc comments illustrating
// smallnest/langgraphgo's integration points — so this wraps the real
// langchaingo/llms contract (llms.Model, llms.GenerateFromSinglePrompt)
// directly rather than adapting an existing call site.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/cogniflow/agentrt/pkg/config"
	"github.com/cogniflow/agentrt/pkg/taxonomy"
)

// CompleteOptions configures a single llm_complete call.
type CompleteOptions struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Client is the external LLM collaborator used by graph nodes.
type Client struct {
	model   llms.Model
	name    string
	defOpts CompleteOptions
}

// New constructs a Client for the named provider entry in cfg. apiKey is
// read by the caller from the environment variable cfg.APIKeyEnv names.
func New(cfg config.LLMProviderConfig, apiKey string) (*Client, error) {
	var (
		model llms.Model
		err   error
	)
	switch cfg.Provider {
	case "openai", "openai_compatible":
		opts := []openai.Option{openai.WithModel(cfg.Model), openai.WithToken(apiKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	case "anthropic":
		model, err = anthropic.New(anthropic.WithModel(cfg.Model), anthropic.WithToken(apiKey))
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		model, err = ollama.New(opts...)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, taxonomy.Wrap(taxonomy.Internal, "llm.new", err)
	}

	return &Client{
		model: model,
		name:  cfg.Model,
		defOpts: CompleteOptions{
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		},
	}, nil
}

// Complete runs a single-turn completion over prompt, returning the raw
// text response. Graph nodes (pkg/graph's feed_publisher/ad_report_summarizer)
// call this as their llm_complete capability.
func (c *Client) Complete(ctx context.Context, prompt string, opts *CompleteOptions) (string, error) {
	if opts == nil {
		opts = &c.defOpts
	}
	callOpts := []llms.CallOption{}
	if opts.Temperature > 0 {
		callOpts = append(callOpts, llms.WithTemperature(opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	resp, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt, callOpts...)
	if err != nil {
		return "", classifyLLMError(err)
	}
	return resp, nil
}

// ModelName reports the configured model identifier.
func (c *Client) ModelName() string { return c.name }

func classifyLLMError(err error) error {
	if err == nil {
		return nil
	}
	// langchaingo does not export a stable sentinel taxonomy for
	// rate-limit vs. transient vs. permanent provider errors, so every
	// llm.Complete error is wrapped as Transient, which is the safe
	// default per spec.md §4.5's retry policy.
	return taxonomy.Wrap(taxonomy.Transient, "llm.complete", err)
}
