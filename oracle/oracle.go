// Package oracle implements the translation oracle client: one capability
// — translate a batch of keys into their missing languages — behind three
// interchangeable transports:
//
//   - "openai"  — hosted chat-completions endpoint with a schema-constrained
//     JSON response (go-openai).
//   - "local"   — locally hosted OpenAI-compatible chat endpoint, plain HTTP.
//   - "mlx"     — purpose-built local endpoint accepting {messages,
//     max_tokens, temperature, enable_thinking} and returning {content},
//     with a companion /reload endpoint.
//
// The transport is selected once at construction. Partial results are
// normal: keys the oracle did not resolve are simply absent from the
// result. A transport or parse failure fails the whole batch — never a
// single item.
package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/minios-linux/fillkit/batch"
)

// Transport identifiers.
const (
	TransportOpenAI = "openai"
	TransportLocal  = "local"
	TransportMLX    = "mlx"
)

// Result maps key → language → translated text.
type Result map[string]map[string]string

// Client is the single contract the pipeline depends on.
type Client interface {
	// Translate sends one batch and returns per-key per-language texts.
	// maxTokens bounds the response size the backend may generate.
	Translate(ctx context.Context, items []batch.Item, maxTokens int) (Result, error)
}

// Reloader is implemented by transports with a model-reload endpoint. The
// pipeline invokes it every N batches to mitigate model drift.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Config selects and parameterizes a transport.
type Config struct {
	// Transport is one of TransportOpenAI, TransportLocal, TransportMLX.
	Transport string
	// BaseURL is the endpoint base (ignored default for openai).
	BaseURL string
	// APIKey authenticates hosted endpoints (empty for local services).
	APIKey string
	// Model is the model identifier sent to chat endpoints.
	Model string
	// Temperature for generation (default 0.3).
	Temperature float32
	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration
	// SettleDelay is the pause after a reload before calls resume (mlx).
	SettleDelay time.Duration
	// OnLog emits log messages (may be nil).
	OnLog func(format string, args ...any)
}

func (c Config) log(format string, args ...any) {
	if c.OnLog != nil {
		c.OnLog(format, args...)
	}
}

func (c Config) effectiveTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 120 * time.Second
}

func (c Config) effectiveTemperature() float32 {
	if c.Temperature > 0 {
		return c.Temperature
	}
	return 0.3
}

// New constructs the client for the configured transport.
func New(cfg Config) (Client, error) {
	switch cfg.Transport {
	case TransportOpenAI:
		return newOpenAIClient(cfg), nil
	case TransportLocal:
		return newLocalClient(cfg), nil
	case TransportMLX:
		return newMLXClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown oracle transport %q (valid: %s, %s, %s)",
			cfg.Transport, TransportOpenAI, TransportLocal, TransportMLX)
	}
}
