package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIClient calls OpenAI chat completion models.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates an OpenAI client authenticated with apiKey.
func NewOpenAIClient(apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIClient{client: &client}, nil
}

func chatParams(model, prompt string) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
}

// Generate implements Client.
func (c *OpenAIClient) Generate(ctx context.Context, model, prompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, chatParams(model, prompt))
	if err != nil {
		return "", fmt.Errorf("Generate: openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errors.New("Generate: empty response from openai")
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream implements Client.
func (c *OpenAIClient) Stream(ctx context.Context, model, prompt string, sink ChunkSink) error {
	stream := c.client.Chat.Completions.NewStreaming(ctx, chatParams(model, prompt))
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if err := sink(delta); err != nil {
			return fmt.Errorf("Stream: sink: %w", err)
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("Stream: openai stream: %w", err)
	}
	return nil
}
