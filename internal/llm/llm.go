// Package llm implements the content generation service on Google Gemini.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"github.com/nirujahdev/LANKA-NEWS-ROOM-sub001/internal/logger"
)

const (
	// DefaultModel is the default Gemini model.
	DefaultModel = "gemini-2.0-flash"
	// DefaultTimeout bounds a single generation request.
	DefaultTimeout = 45 * time.Second
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("llm: empty response from model")

// Options configures a Client.
type Options struct {
	APIKey            string
	Model             string
	Temperature       float32
	Timeout           time.Duration
	RequestsPerMinute int // Unlimited when <= 0
	RetryAttempts     int // Extra attempts after the first
	RetryBackoff      time.Duration
}

// model is one text generation backend. schema, when set, requests a JSON
// response matching it.
type model interface {
	generate(ctx context.Context, prompt string, schema *genai.Schema) (string, error)
}

// Client represents a rate limited, retrying Gemini client.
type Client struct {
	model     model
	modelName string
	limiter   *rate.Limiter
	timeout   time.Duration
	retries   int
	backoff   time.Duration
	log       *slog.Logger
	close     func() error
}

// NewClient creates a Gemini-backed client.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("gemini API key is required. Set GEMINI_API_KEY environment variable or ai.gemini.api_key in config file")
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}

	gClient, err := genai.NewClient(ctx, option.WithAPIKey(opts.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	c := newClient(&geminiModel{client: gClient, name: opts.Model, temperature: opts.Temperature}, opts)
	c.close = gClient.Close
	return c, nil
}

func newClient(m model, opts Options) *Client {
	limit := rate.Inf
	burst := 1
	if opts.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(opts.RequestsPerMinute) / 60.0)
		burst = max(1, opts.RequestsPerMinute/10)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	return &Client{
		model:     m,
		modelName: opts.Model,
		limiter:   rate.NewLimiter(limit, burst),
		timeout:   opts.Timeout,
		retries:   max(0, opts.RetryAttempts),
		backoff:   opts.RetryBackoff,
		log:       logger.Get(),
		close:     func() error { return nil },
	}
}

// Close releases the underlying client.
func (c *Client) Close() error {
	return c.close()
}

// ModelName returns the configured model.
func (c *Client) ModelName() string {
	return c.modelName
}

// call runs one generation under the rate limiter, retrying transport
// failures with exponential backoff.
func (c *Client) call(ctx context.Context, op, prompt string, schema *genai.Schema) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			delay := c.backoff << (attempt - 1)
			c.log.Debug("Retrying generation", "op", op, "attempt", attempt+1, "delay", delay, "error", lastErr.Error())
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		start := time.Now()
		text, err := c.model.generate(callCtx, prompt, schema)
		cancel()
		if err == nil {
			c.log.Debug("Generation completed", "op", op, "model", c.modelName, "duration", time.Since(start))
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
	}
	return "", fmt.Errorf("%s failed after %d attempts: %w", op, c.retries+1, lastErr)
}

// geminiModel implements model on the Gemini API.
type geminiModel struct {
	client      *genai.Client
	name        string
	temperature float32
}

func (m *geminiModel) generate(ctx context.Context, prompt string, schema *genai.Schema) (string, error) {
	gm := m.client.GenerativeModel(m.name)
	if m.temperature > 0 {
		gm.SetTemperature(m.temperature)
	}
	if schema != nil {
		gm.ResponseMIMEType = "application/json"
		gm.ResponseSchema = schema
	}

	resp, err := gm.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	return responseText(resp)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}
