package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"campaign-orchestrator/internal/common/logger"
	"campaign-orchestrator/internal/common/metrics"
)

var (
	ErrAPIFailed  = errors.New("API_ERROR")
	ErrAPITimeout = errors.New("TIMEOUT")
)

// Config holds the gateway connection settings.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxAttempts int
	BackoffBase time.Duration
}

// Client calls a chat-completion-style language model endpoint.
type Client struct {
	config *Config
	client *http.Client
	logger logger.Logger
}

func NewClient(config *Config, log logger.Logger) *Client {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = time.Second
	}
	return &Client{
		config: config,
		// No client-level timeout; the per-call context carries the deadline.
		client: &http.Client{},
		logger: log.WithFields(map[string]interface{}{"component": "llm-gateway"}),
	}
}

// Model returns the configured default model name.
func (c *Client) Model() string {
	return c.config.Model
}

// Chat sends one chat-completion request with up to MaxAttempts tries and
// exponential backoff between them. The configured Timeout bounds the whole
// call, retries included; a tighter caller deadline still wins.
func (c *Client) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	if req.Model == "" {
		req.Model = c.config.Model
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrAPIFailed, err)
	}

	var resp *ChatResponse
	var lastErr error

	for attempt := 0; attempt < c.config.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.config.BackoffBase * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				metrics.LLMRequests.WithLabelValues("timeout").Inc()
				return nil, ErrAPITimeout
			}
		}

		resp, lastErr = c.send(ctx, body)
		if ctx.Err() != nil ||
			errors.Is(lastErr, context.DeadlineExceeded) ||
			errors.Is(lastErr, context.Canceled) {
			metrics.LLMRequests.WithLabelValues("timeout").Inc()
			return nil, ErrAPITimeout
		}
		if lastErr == nil {
			break
		}

		c.logger.Warn("model call failed, retrying", map[string]interface{}{
			"attempt": attempt + 1,
			"error":   lastErr.Error(),
		})
	}

	if lastErr != nil {
		metrics.LLMRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrAPIFailed, lastErr)
	}

	metrics.LLMRequests.WithLabelValues("success").Inc()
	metrics.LLMTokens.WithLabelValues("prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.LLMTokens.WithLabelValues("completion").Add(float64(resp.Usage.CompletionTokens))

	c.logger.Debug("model call completed", map[string]interface{}{
		"model":       resp.Model,
		"totalTokens": resp.Usage.TotalTokens,
	})

	return resp, nil
}

func (c *Client) send(ctx context.Context, body []byte) (*ChatResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(snippet))
	}

	var out ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %v", err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("response has no choices")
	}

	return &out, nil
}
