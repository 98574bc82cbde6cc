package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/minios-linux/fillkit/batch"
)

// mlxClient talks to the purpose-built local server: a single /translate
// endpoint with an explicit message list and a /reload endpoint that swaps
// the model back in from disk. Thinking is disabled — the server would
// otherwise burn the token budget on reasoning traces.
type mlxClient struct {
	baseURL     string
	temperature float32
	settleDelay time.Duration
	httpClient  *http.Client
	log         func(format string, args ...any)
}

func newMLXClient(cfg Config) *mlxClient {
	return &mlxClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		temperature: cfg.effectiveTemperature(),
		settleDelay: cfg.SettleDelay,
		httpClient:  &http.Client{Timeout: cfg.effectiveTimeout()},
		log:         cfg.log,
	}
}

type mlxRequest struct {
	Messages       []chatMessage `json:"messages"`
	MaxTokens      int           `json:"max_tokens"`
	Temperature    float32       `json:"temperature"`
	EnableThinking bool          `json:"enable_thinking"`
}

func (c *mlxClient) Translate(ctx context.Context, items []batch.Item, maxTokens int) (Result, error) {
	body, err := json.Marshal(mlxRequest{
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: BuildUserPrompt(items)},
		},
		MaxTokens:      maxTokens,
		Temperature:    c.temperature,
		EnableThinking: false,
	})
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	text, err := postJSON(ctx, c.httpClient, c.baseURL+"/translate", "", body, extractMLXContent)
	if err != nil {
		return nil, err
	}
	return ParseResult(text)
}

// Reload asks the server to re-instantiate the model, then waits for it to
// settle before the next Translate call goes out.
func (c *mlxClient) Reload(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/reload", nil)
	if err != nil {
		return fmt.Errorf("creating reload request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("reload request failed: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reload returned status %d", resp.StatusCode)
	}
	if c.settleDelay > 0 {
		c.log("model reloaded, settling for %s", c.settleDelay)
		select {
		case <-time.After(c.settleDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func extractMLXContent(body []byte) (string, error) {
	var raw struct {
		Content string `json:"content"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("invalid JSON response: %w", err)
	}
	if raw.Error != "" {
		return "", fmt.Errorf("server error: %s", raw.Error)
	}
	if raw.Content == "" {
		return "", fmt.Errorf("response has no content: %s", truncate(string(body), 300))
	}
	return raw.Content, nil
}
