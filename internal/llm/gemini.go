package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// GeminiClient calls Google Gemini models.
type GeminiClient struct {
	client *genai.Client
}

// NewGeminiClient creates a Gemini client authenticated with apiKey.
func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiClient: create genai client: %w", err)
	}
	return &GeminiClient{client: client}, nil
}

// Generate implements Client.
func (c *GeminiClient) Generate(ctx context.Context, model, prompt string) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("Generate: generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", errors.New("Generate: empty response from model")
	}
	return text, nil
}

// Stream implements Client.
func (c *GeminiClient) Stream(ctx context.Context, model, prompt string, sink ChunkSink) error {
	for resp, err := range c.client.Models.GenerateContentStream(ctx, model, genai.Text(prompt), nil) {
		if err != nil {
			return fmt.Errorf("Stream: generate content: %w", err)
		}
		chunk := resp.Text()
		if chunk == "" {
			continue
		}
		if err := sink(chunk); err != nil {
			return fmt.Errorf("Stream: sink: %w", err)
		}
	}
	return nil
}
