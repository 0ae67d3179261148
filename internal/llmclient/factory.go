// Package llmclient provides completion clients for the supported LLM
// providers behind the schemas.LLMClient interface. Every client retries
// transient failures with bounded exponential backoff and classifies
// provider rejections as permanent, so callers only ever see terminal
// errors.
package llmclient

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mkgraph/api/schemas"
	"github.com/xkilldash9x/mkgraph/internal/config"
)

// NewClient builds an LLMClient for the configured provider.
func NewClient(cfg config.LLMConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg, logger)
	case config.ProviderAnthropic:
		return NewAnthropicClient(cfg, logger)
	case config.ProviderOllama:
		return NewOllamaClient(cfg, logger)
	case config.ProviderGemini:
		return NewGeminiClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: %q. Supported: [%s %s %s %s]",
			cfg.Provider, config.ProviderOpenAI, config.ProviderAnthropic, config.ProviderOllama, config.ProviderGemini)
	}
}

// newBackoff builds the shared retry schedule: exponential with a capped
// interval, bounded by the configured attempt count.
func newBackoff(maxAttempts int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return backoff.WithMaxRetries(b, uint64(maxAttempts-1))
}

// transientStatus reports whether an HTTP status is worth retrying.
func transientStatus(status int) bool {
	switch status {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
