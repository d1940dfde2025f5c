// Package classifier talks to an Ollama server to answer yes/no questions
// about report text.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// MaxContentChars bounds the report text sent in one prompt.
	MaxContentChars = 10000
	contentToken    = "{content}"
	maxErrorBody    = 512
)

// Answer is the classifier's response to one prompt.
type Answer struct {
	Content    string        `json:"content"`
	Confidence float64       `json:"confidence"`
	Model      string        `json:"model"`
	Duration   time.Duration `json:"duration"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ollama HTTP %d: %s", e.StatusCode, e.Body)
}

// Client is an Ollama /api/generate client with timeout, retry and rate limiting.
type Client struct {
	baseURL     string
	model       string
	temperature float64
	timeout     time.Duration
	httpClient  *http.Client
	retry       retryConfig
	limiter     *RateLimiter
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds one Classify call including retries.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
		c.httpClient.Timeout = d
	}
}

// WithMaxRetries sets the number of attempts per call.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.retry.maxAttempts = n
	}
}

// WithRateLimit caps requests per second. Zero disables limiting.
func WithRateLimit(rps int) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = NewRateLimiter(rps)
		} else {
			c.limiter = nil
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *Client) {
		c.temperature = t
	}
}

func withSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		c.retry.sleep = sleep
	}
}

// New returns a client for the server at baseURL using model.
func New(baseURL, model string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		temperature: 0.1,
		timeout:     60 * time.Second,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		retry:       defaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

// Classify renders prompt with text and asks the model. When options is not
// empty the answer is reduced to one of them.
func (c *Client) Classify(ctx context.Context, text, prompt string, options []string) (Answer, error) {
	start := time.Now()
	ctx, cancel := withTotalTimeoutContext(ctx, c.timeout)
	defer cancel()

	rendered := RenderPrompt(prompt, text)
	if len(options) > 0 {
		rendered += "\n\nValid options: " + strings.Join(options, ", ")
		rendered += "\nRespond with only one of the valid options."
	}

	var raw string
	err := executeWithRetry(ctx, c.retry, func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		out, err := c.generate(ctx, rendered)
		if err != nil {
			slog.Debug("classifier attempt failed",
				slog.String("model", c.model),
				slog.String("error", err.Error()),
			)
			return err
		}
		raw = out
		return nil
	})
	if err != nil {
		return Answer{}, fmt.Errorf("failed to classify with %s: %w", c.model, err)
	}

	content := strings.TrimSpace(raw)
	answer := Answer{
		Content:    content,
		Confidence: ExtractConfidence(content),
		Model:      c.model,
		Duration:   time.Since(start),
	}
	if len(options) > 0 {
		answer.Content = MatchOption(content, options)
	}
	return answer, nil
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
		Options: map[string]any{
			"temperature": c.temperature,
			"top_p":       0.9,
			"num_predict": 100,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := string(data)
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return "", &APIError{StatusCode: resp.StatusCode, Body: text}
	}

	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("invalid response from ollama: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama error: %s", out.Error)
	}
	return out.Response, nil
}

// Ping checks that the server answers and knows at least one model.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach ollama at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Body: resp.Status}
	}
	return nil
}

// RenderPrompt substitutes {content} with text, truncated to MaxContentChars.
// Prompts without the placeholder get the text appended.
func RenderPrompt(prompt, text string) string {
	if r := []rune(text); len(r) > MaxContentChars {
		text = string(r[:MaxContentChars])
	}
	if strings.Contains(prompt, contentToken) {
		return strings.ReplaceAll(prompt, contentToken, text)
	}
	return prompt + "\n\n" + text
}
