package llmclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mkgraph/internal/config"
)

func baseLLMConfig(p config.Provider) config.LLMConfig {
	return config.LLMConfig{
		Provider:    p,
		APIKey:      "test-key",
		APITimeout:  5 * time.Second,
		Temperature: 0.3,
		MaxTokens:   512,
		MaxAttempts: 3,
	}
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	t.Run("builds a client per provider", func(t *testing.T) {
		t.Parallel()
		for _, p := range []config.Provider{
			config.ProviderOpenAI,
			config.ProviderAnthropic,
			config.ProviderOllama,
			config.ProviderGemini,
		} {
			client, err := NewClient(baseLLMConfig(p), zap.NewNop())
			require.NoError(t, err, "provider %s", p)
			assert.NotNil(t, client, "provider %s", p)
		}
	})

	t.Run("rejects unknown providers", func(t *testing.T) {
		t.Parallel()
		_, err := NewClient(baseLLMConfig("bard"), zap.NewNop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bard")
	})

	t.Run("hosted providers require an API key", func(t *testing.T) {
		t.Parallel()
		for _, p := range []config.Provider{
			config.ProviderOpenAI,
			config.ProviderAnthropic,
			config.ProviderGemini,
		} {
			cfg := baseLLMConfig(p)
			cfg.APIKey = ""
			_, err := NewClient(cfg, zap.NewNop())
			assert.Error(t, err, "provider %s", p)
		}
	})

	t.Run("ollama needs no API key", func(t *testing.T) {
		t.Parallel()
		cfg := baseLLMConfig(config.ProviderOllama)
		cfg.APIKey = ""
		client, err := NewClient(cfg, zap.NewNop())
		require.NoError(t, err)
		assert.NotNil(t, client)
	})

	t.Run("nil logger is tolerated", func(t *testing.T) {
		t.Parallel()
		client, err := NewClient(baseLLMConfig(config.ProviderOpenAI), nil)
		require.NoError(t, err)
		assert.NotNil(t, client)
	})
}

func TestTransientStatus(t *testing.T) {
	t.Parallel()

	for _, status := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, transientStatus(status), "status %d", status)
	}
	for _, status := range []int{200, 400, 401, 403, 404, 422} {
		assert.False(t, transientStatus(status), "status %d", status)
	}
}
