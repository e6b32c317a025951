// Package qwen invokes a DashScope-compatible chat completions endpoint.
// Failures are classified by HTTP status — 4xx is a terminal client defect,
// everything else is transient and retried with linear backoff — and the
// whole invocation, retries included, is bounded by the caller's context.
package qwen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kbukum/aiviz/internal/httpclient"
	"github.com/kbukum/aiviz/internal/logger"
	"github.com/kbukum/aiviz/internal/resilience"
)

const (
	// DefaultBaseURL is the DashScope OpenAI-compatible endpoint.
	DefaultBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	// DefaultModel is the model used when none is configured.
	DefaultModel = "qwen-plus"

	chatPath = "/chat/completions"
)

// ErrEmptyResponse is returned when the provider response carries no content.
var ErrEmptyResponse = errors.New("qwen: empty model response")

// Config configures the upstream invoker.
type Config struct {
	// BaseURL is the provider base URL.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	// Model is the model identifier sent with every request.
	Model string `yaml:"model" mapstructure:"model"`
	// APIKey is the service-default key. Per-request caller keys override it
	// at call time, not here.
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
	// MaxAttempts caps total attempts per invocation (first call + retries).
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
	// BackoffStep is the linear backoff unit between attempts.
	BackoffStep time.Duration `yaml:"backoff_step" mapstructure:"backoff_step"`
	// OnRetry is invoked before each retry (metrics hook).
	OnRetry func(attempt int) `yaml:"-" mapstructure:"-"`
}

// ApplyDefaults fills in zero-value fields.
func (c *Config) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffStep <= 0 {
		c.BackoffStep = 500 * time.Millisecond
	}
}

// Client sends chat prompts to the model endpoint.
type Client struct {
	http    *httpclient.Client
	cfg     Config
	log     *logger.Logger
	retryIf func(error) bool
}

// New creates an upstream invoker.
func New(cfg Config, log *logger.Logger) *Client {
	cfg.ApplyDefaults()
	return &Client{
		// No client-level timeout: each invocation is bounded by the
		// caller's context deadline, which differs per purpose.
		http: httpclient.New(httpclient.Config{
			BaseURL: cfg.BaseURL,
			Timeout: time.Hour,
		}),
		cfg: cfg,
		log: log.WithComponent("qwen"),
		retryIf: func(err error) bool {
			return resilience.DefaultRetryIf(err) && httpclient.IsRetryable(err)
		},
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.cfg.Model }

// Invoke sends the messages and returns the raw text of the model's single
// response message. Transient failures are retried up to the configured
// budget with linear backoff; a context deadline firing mid-retry cancels
// the in-flight call and fails the invocation regardless of budget left.
func (c *Client) Invoke(ctx context.Context, messages []Message, apiKey string) (string, error) {
	if apiKey == "" {
		return "", errors.New("qwen: API key missing")
	}

	retryCfg := resilience.RetryConfig{
		MaxAttempts: c.cfg.MaxAttempts,
		Backoff:     resilience.LinearBackoff(c.cfg.BackoffStep),
		RetryIf:     c.retryIf,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			c.log.WithError(err).Warn("model call failed, retrying", map[string]interface{}{
				"attempt": attempt,
				"backoff": backoff.String(),
			})
			if c.cfg.OnRetry != nil {
				c.cfg.OnRetry(attempt)
			}
		},
	}

	return resilience.Retry(ctx, retryCfg, func() (string, error) {
		return c.call(ctx, messages, apiKey)
	})
}

// call performs one synchronous chat completion round trip.
func (c *Client) call(ctx context.Context, messages []Message, apiKey string) (string, error) {
	resp, err := c.http.Do(ctx, httpclient.Request{
		Method:  http.MethodPost,
		Path:    chatPath,
		Headers: map[string]string{"Authorization": "Bearer " + apiKey},
		Body: completionRequest{
			Model:          c.cfg.Model,
			Temperature:    0,
			ResponseFormat: responseFormat{Type: "json_object"},
			Messages:       messages,
		},
	})
	if err != nil {
		return "", err
	}

	var parsed completionResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return "", fmt.Errorf("qwen: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return parsed.Choices[0].Message.Content, nil
}

// IsTimeout reports whether an invocation error was caused by the deadline
// rather than the provider.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || httpclient.IsTimeout(err)
}
