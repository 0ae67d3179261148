package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mkgraph/api/schemas"
	"github.com/xkilldash9x/mkgraph/internal/config"
)

const defaultOllamaModel = "llama3.2"

// OllamaClient talks to a local Ollama daemon's generate API.
type OllamaClient struct {
	endpoint    string
	model       string
	maxAttempts int
	httpClient  *http.Client
	logger      *zap.Logger
}

type ollamaOptions struct {
	Temperature float32 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	System  string        `json:"system,omitempty"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Format  string        `json:"format,omitempty"`
	Options ollamaOptions `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// NewOllamaClient initializes the client. No API key: Ollama is local.
func NewOllamaClient(cfg config.LLMConfig, logger *zap.Logger) (*OllamaClient, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		if env := os.Getenv("OLLAMA_URL"); env != "" {
			endpoint = env
		} else {
			endpoint = "http://localhost:11434"
		}
	}
	endpoint = strings.TrimSuffix(endpoint, "/") + "/api/generate"

	model := cfg.Model
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaClient{
		endpoint:    endpoint,
		model:       model,
		maxAttempts: cfg.MaxAttempts,
		httpClient:  &http.Client{Timeout: cfg.APITimeout},
		logger:      logger.Named("llm_client.ollama"),
	}, nil
}

// Generate sends the prompt to the local daemon and returns the completion
// text, retrying transient failures.
func (c *OllamaClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	payload := ollamaRequest{
		Model:  c.model,
		System: req.SystemPrompt,
		Prompt: req.UserPrompt,
		Stream: false,
		Options: ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	}
	if req.ForceJSONFormat {
		payload.Format = "json"
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	var content string
	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")

		start := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			c.logger.Warn("Network error during LLM request, retrying...", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("ollama API error: status %d, body: %s", resp.StatusCode, respBody)
			if transientStatus(resp.StatusCode) {
				return err
			}
			return backoff.Permanent(err)
		}

		var parsed ollamaResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
		}

		c.logger.Debug("LLM generation complete (Ollama)",
			zap.Duration("duration", time.Since(start)))

		content = parsed.Response
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(newBackoff(c.maxAttempts), ctx)); err != nil {
		return "", err
	}
	return content, nil
}
