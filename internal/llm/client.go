// Package llm wraps the generative text providers behind a single Client
// interface used by the analysis pipeline.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/dvloznov/finance-insights/internal/domain"
)

// ErrNotConfigured is returned when a provider has no API key.
var ErrNotConfigured = errors.New("model client not configured")

// ChunkSink receives streamed text in arrival order. Returning an error
// stops the stream.
type ChunkSink func(chunk string) error

// Client is a generative text model.
type Client interface {
	// Generate returns the full response text for prompt.
	Generate(ctx context.Context, model, prompt string) (string, error)
	// Stream forwards each response chunk to sink as soon as it arrives and
	// returns once the upstream stream ends.
	Stream(ctx context.Context, model, prompt string, sink ChunkSink) error
}

// Provider names a supported model vendor.
type Provider string

const (
	ProviderGemini    Provider = "gemini"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// ModelSet holds the two model identifiers used by the pipeline.
type ModelSet struct {
	// Fast serves patterns, trends and streaming.
	Fast string
	// Quality serves recommendations.
	Quality string
}

// For returns the model used for kind.
func (m ModelSet) For(kind domain.AnalysisKind) string {
	if kind == domain.KindRecommendations {
		return m.Quality
	}
	return m.Fast
}

// DefaultModels returns the model identifiers used when none are configured.
func DefaultModels(p Provider) ModelSet {
	switch p {
	case ProviderOpenAI:
		return ModelSet{Fast: "gpt-4o-mini", Quality: "gpt-4o"}
	case ProviderAnthropic:
		return ModelSet{Fast: string(anthropic.ModelClaudeHaiku4_5), Quality: "claude-sonnet-4-5"}
	default:
		return ModelSet{Fast: "gemini-2.5-flash", Quality: "gemini-2.5-pro"}
	}
}

// Config selects and authenticates a provider.
type Config struct {
	Provider        Provider
	GeminiAPIKey    string
	OpenAIAPIKey    string
	AnthropicAPIKey string
}

// New constructs the client for cfg.Provider. A missing key yields
// ErrNotConfigured so callers can run without a model and fail analyses fast.
func New(ctx context.Context, cfg Config) (Client, error) {
	var (
		client Client
		err    error
	)
	switch Provider(strings.ToLower(string(cfg.Provider))) {
	case ProviderGemini, "":
		var c *GeminiClient
		if c, err = NewGeminiClient(ctx, cfg.GeminiAPIKey); err == nil {
			client = c
		}
	case ProviderOpenAI:
		var c *OpenAIClient
		if c, err = NewOpenAIClient(cfg.OpenAIAPIKey); err == nil {
			client = c
		}
	case ProviderAnthropic:
		var c *AnthropicClient
		if c, err = NewAnthropicClient(cfg.AnthropicAPIKey); err == nil {
			client = c
		}
	default:
		return nil, fmt.Errorf("New: unknown model provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return client, nil
}
