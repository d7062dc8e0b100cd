// Package llm provides the Anthropic messages client used by the planner,
// the executor's step-failure fallback, the smart-auth vision tier, and the
// ai_evaluate assertion.
package llm

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/webprobe/webprobe/internal/resilience"
)

// Completer is the operation surface consumers depend on. A nil Completer
// means the LLM is unavailable and callers must fall back deterministically.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	CompleteWithImage(ctx context.Context, systemPrompt, userPrompt string, imagePNG []byte) (string, error)
}

// Config for the Claude client
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int
	Timeout      time.Duration
	RateLimitRPM int
	CacheTTL     time.Duration
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:      "https://api.anthropic.com",
		Model:        "claude-sonnet-4-20250514",
		MaxTokens:    8192,
		Timeout:      120 * time.Second,
		RateLimitRPM: 50,
		CacheTTL:     24 * time.Hour,
	}
}

// Metrics tracks API usage
type Metrics struct {
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	TotalTokensIn   int64
	TotalTokensOut  int64
	CacheHits       int64
	CacheMisses     int64
}

// Client talks to the Anthropic messages API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client

	rateLimiter *rate.Limiter
	breaker     *resilience.Breaker
	cache       ResponseCache
	cacheTTL    time.Duration

	metrics Metrics
	logger  *zap.Logger
}

// NewClient creates a new Claude API client. The cache may be nil.
func NewClient(cfg Config, cache ResponseCache, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RateLimitRPM == 0 {
		cfg.RateLimitRPM = def.RateLimitRPM
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cache == nil {
		cache = NewMemoryCache()
	}

	breaker := resilience.New(resilience.Config{
		OnStateChange: func(from, to resilience.State) {
			if logger != nil {
				logger.Warn("LLM circuit breaker state change",
					zap.Stringer("from", from), zap.Stringer("to", to))
			}
		},
	})

	return &Client{
		apiKey:      cfg.APIKey,
		baseURL:     cfg.BaseURL,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		rateLimiter: rate.NewLimiter(rate.Limit(float64(cfg.RateLimitRPM)/60.0), 1),
		breaker:     breaker,
		cache:       cache,
		cacheTTL:    cfg.CacheTTL,
		logger:      logger,
	}, nil
}

// request represents a messages API request
type request struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// response represents a messages API response
type response struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete sends a text-only completion request.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	cacheKey := c.cacheKey(systemPrompt, userPrompt, nil)
	if cached, ok := c.cache.Get(ctx, cacheKey); ok {
		atomic.AddInt64(&c.metrics.CacheHits, 1)
		return cached, nil
	}
	atomic.AddInt64(&c.metrics.CacheMisses, 1)

	text, err := c.send(ctx, systemPrompt, message{Role: "user", Content: userPrompt})
	if err != nil {
		return "", err
	}

	c.cache.Set(ctx, cacheKey, text, c.cacheTTL)
	return text, nil
}

// CompleteWithImage sends a completion request with a PNG attachment, used by
// the vision auth tier and the ai_evaluate assertion. Image requests are not
// cached; page pixels change between runs.
func (c *Client) CompleteWithImage(ctx context.Context, systemPrompt, userPrompt string, imagePNG []byte) (string, error) {
	content := []contentBlock{
		{
			Type: "image",
			Source: &imageSource{
				Type:      "base64",
				MediaType: "image/png",
				Data:      base64.StdEncoding.EncodeToString(imagePNG),
			},
		},
		{Type: "text", Text: userPrompt},
	}
	return c.send(ctx, systemPrompt, message{Role: "user", Content: content})
}

func (c *Client) send(ctx context.Context, systemPrompt string, msg message) (string, error) {
	atomic.AddInt64(&c.metrics.TotalRequests, 1)

	if err := c.rateLimiter.Wait(ctx); err != nil {
		atomic.AddInt64(&c.metrics.FailedRequests, 1)
		return "", fmt.Errorf("rate limit: %w", err)
	}

	req := request{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		System:      systemPrompt,
		Messages:    []message{msg},
		Temperature: 0.3,
	}

	var resp *response
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		var reqErr error
		resp, reqErr = c.doRequest(ctx, req)
		return reqErr
	})
	if err != nil {
		atomic.AddInt64(&c.metrics.FailedRequests, 1)
		return "", err
	}

	atomic.AddInt64(&c.metrics.SuccessRequests, 1)
	atomic.AddInt64(&c.metrics.TotalTokensIn, int64(resp.Usage.InputTokens))
	atomic.AddInt64(&c.metrics.TotalTokensOut, int64(resp.Usage.OutputTokens))

	if len(resp.Content) == 0 {
		return "", fmt.Errorf("empty response")
	}
	return resp.Content[0].Text, nil
}

func (c *Client) doRequest(ctx context.Context, req request) (*response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	if c.logger != nil {
		c.logger.Debug("calling LLM", zap.String("model", c.model), zap.Int("body_bytes", len(body)))
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var apiResp response
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	return &apiResp, nil
}

func (c *Client) cacheKey(systemPrompt, userPrompt string, image []byte) string {
	h := sha256.New()
	h.Write([]byte(c.model))
	h.Write([]byte{0})
	h.Write([]byte(systemPrompt))
	h.Write([]byte{0})
	h.Write([]byte(userPrompt))
	if len(image) > 0 {
		h.Write(image)
	}
	return "llm:" + hex.EncodeToString(h.Sum(nil))
}

// GetMetrics returns a snapshot of usage counters.
func (c *Client) GetMetrics() Metrics {
	return Metrics{
		TotalRequests:   atomic.LoadInt64(&c.metrics.TotalRequests),
		SuccessRequests: atomic.LoadInt64(&c.metrics.SuccessRequests),
		FailedRequests:  atomic.LoadInt64(&c.metrics.FailedRequests),
		TotalTokensIn:   atomic.LoadInt64(&c.metrics.TotalTokensIn),
		TotalTokensOut:  atomic.LoadInt64(&c.metrics.TotalTokensOut),
		CacheHits:       atomic.LoadInt64(&c.metrics.CacheHits),
		CacheMisses:     atomic.LoadInt64(&c.metrics.CacheMisses),
	}
}

// GetModel returns the model being used
func (c *Client) GetModel() string {
	return c.model
}
