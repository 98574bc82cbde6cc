package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/minios-linux/fillkit/batch"
)

// localClient talks to a locally hosted OpenAI-compatible chat endpoint
// (Ollama, llama.cpp server, vLLM). No schema constraint — local backends
// rarely support structured output, so sanitation carries the weight.
type localClient struct {
	endpoint    string
	apiKey      string
	model       string
	temperature float32
	httpClient  *http.Client
}

func newLocalClient(cfg Config) *localClient {
	base := strings.TrimRight(cfg.BaseURL, "/")
	endpoint := base
	if !strings.HasSuffix(base, "/chat/completions") {
		endpoint = base + "/v1/chat/completions"
		if strings.HasSuffix(base, "/v1") {
			endpoint = base + "/chat/completions"
		}
	}
	return &localClient{
		endpoint:    endpoint,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.effectiveTemperature(),
		httpClient:  &http.Client{Timeout: cfg.effectiveTimeout()},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

func (c *localClient) Translate(ctx context.Context, items []batch.Item, maxTokens int) (Result, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: BuildUserPrompt(items)},
		},
		Temperature: c.temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	text, err := postJSON(ctx, c.httpClient, c.endpoint, c.apiKey, body, extractChatContent)
	if err != nil {
		return nil, err
	}
	return ParseResult(text)
}

// postJSON POSTs a JSON body and extracts the response text with extract.
func postJSON(ctx context.Context, client *http.Client, endpoint, apiKey string, body []byte, extract func([]byte) (string, error)) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("API request failed: %w", err)
	}
	respBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncate(string(respBody), 300))
	}

	return extract(respBody)
}

// extractChatContent pulls choices[0].message.content out of an
// OpenAI-compatible chat response, with an error-field check first.
func extractChatContent(body []byte) (string, error) {
	var raw struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("invalid JSON response: %w", err)
	}
	if raw.Error != nil {
		return "", fmt.Errorf("API error: %s", raw.Error.Message)
	}
	if len(raw.Choices) == 0 {
		return "", fmt.Errorf("response has no choices: %s", truncate(string(body), 300))
	}
	return raw.Choices[0].Message.Content, nil
}
