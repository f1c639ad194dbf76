package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicMaxTokens = 2048

// AnthropicClient calls Anthropic Claude models.
type AnthropicClient struct {
	client *anthropic.Client
}

// NewAnthropicClient creates an Anthropic client authenticated with apiKey.
func NewAnthropicClient(apiKey string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicClient{client: &client}, nil
}

func messageParams(model, prompt string) anthropic.MessageNewParams {
	return anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
}

// Generate implements Client.
func (c *AnthropicClient) Generate(ctx context.Context, model, prompt string) (string, error) {
	resp, err := c.client.Messages.New(ctx, messageParams(model, prompt))
	if err != nil {
		return "", fmt.Errorf("Generate: anthropic message: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", errors.New("Generate: empty response from anthropic")
	}
	return b.String(), nil
}

// Stream implements Client.
func (c *AnthropicClient) Stream(ctx context.Context, model, prompt string, sink ChunkSink) error {
	stream := c.client.Messages.NewStreaming(ctx, messageParams(model, prompt))
	defer stream.Close()

	for stream.Next() {
		event, ok := stream.Current().AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		delta, ok := event.Delta.AsAny().(anthropic.TextDelta)
		if !ok || delta.Text == "" {
			continue
		}
		if err := sink(delta.Text); err != nil {
			return fmt.Errorf("Stream: sink: %w", err)
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("Stream: anthropic stream: %w", err)
	}
	return nil
}
