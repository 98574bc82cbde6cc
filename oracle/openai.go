package oracle

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/minios-linux/fillkit/batch"
)

// openaiClient calls a hosted chat-completions endpoint and constrains the
// response with a JSON schema built from the batch, so the backend cannot
// return anything but the requested keys and languages.
type openaiClient struct {
	client      *openai.Client
	model       string
	temperature float32
}

func newOpenAIClient(cfg Config) *openaiClient {
	conf := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		conf.BaseURL = cfg.BaseURL
	}
	return &openaiClient{
		client:      openai.NewClientWithConfig(conf),
		model:       cfg.Model,
		temperature: cfg.effectiveTemperature(),
	}
}

func (c *openaiClient) Translate(ctx context.Context, items []batch.Item, maxTokens int) (Result, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildUserPrompt(items)},
		},
		Temperature: c.temperature,
		MaxTokens:   maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "translations",
				Schema: ResponseSchema(items),
				Strict: true,
			},
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	return ParseResult(resp.Choices[0].Message.Content)
}
