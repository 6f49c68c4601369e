// Package llm defines the narrow request/response boundary every agent
// call and judge call goes through. It deliberately does not depend on
// cloudwego/eino or any provider SDK: spec.md §1 scopes the language-model
// boundary to its request/response contract, and the two drivers below
// talk to their providers' HTTP APIs directly.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/loopr-dev/loopr/internal/config"
)

// Client is the single method every caller in this repo needs from a
// language model: a system/user prompt pair in, a response string out.
// internal/validation's Completer interface is satisfied structurally by
// any Client, with no import cycle between the two packages.
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// RateLimitError is returned when a provider responds 429. The executor
// unwraps it with errors.As and hands RetryAfter, if any, to the
// Rate-Limit Coordinator (internal/ratelimit).
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("llm: %s: rate limited, retry after %s", e.Provider, e.RetryAfter)
}

// New builds a Client for cfg.Driver. "anthropic" and "openai" are the two
// drivers the teacher's config.ProviderConfig already names; any other
// driver is an error rather than a silent fallback.
func New(cfg config.ProviderConfig) (Client, error) {
	auth, err := ResolveAuth(cfg)
	if err != nil {
		return nil, fmt.Errorf("llm: new client: %w", err)
	}

	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	switch strings.ToLower(cfg.Driver) {
	case "anthropic":
		return newAnthropicClient(cfg, auth, httpClient), nil
	case "openai":
		return newOpenAIClient(cfg, auth, httpClient), nil
	default:
		return nil, fmt.Errorf("llm: unknown driver %q", cfg.Driver)
	}
}
