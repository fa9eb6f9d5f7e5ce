package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"AssistChat/internal/backend"
	"AssistChat/internal/config"
	"AssistChat/internal/digest"
	"AssistChat/internal/session"
)

const (
	// Model is sent with every remote request.
	Model = "gpt-3.5-turbo"

	// Temperature is sent with every remote request.
	Temperature = 0.7

	// DefaultFallbackDelay simulates provider latency in demo mode.
	DefaultFallbackDelay = time.Second

	instrumentationName = "assistchat/completion"
)

// DemoText is the reply given when no API key is configured.
const DemoText = "I am currently running in **Demo Mode** because no API Key is configured.\n\n" +
	"To connect me to a real AI:\n" +
	"1. Create a `.env` file in the directory you run assistchat from.\n" +
	"2. Add `AI_API_KEY=your_key_here` (and optionally `AI_API_URL=...`).\n\n" +
	"For now, I can only echo this message!"

// Completer produces the next assistant message for a context window.
type Completer interface {
	Complete(ctx context.Context, window []session.Message) (session.Message, error)
}

// Options tune a Client. Zero values fall back to defaults.
type Options struct {
	HTTPClient    *http.Client
	Logger        *slog.Logger
	Tracer        trace.Tracer
	Meter         metric.Meter
	FallbackDelay time.Duration
}

// Client calls the configured provider, or answers in demo mode without one.
type Client struct {
	cfg           config.ProviderConfig
	httpClient    *http.Client
	logger        *slog.Logger
	tracer        trace.Tracer
	fallbackDelay time.Duration

	duration  metric.Float64Histogram
	fallbacks metric.Int64Counter
	failures  metric.Int64Counter
	meter     metric.Meter
}

// NewClient creates a Client bound to cfg.
func NewClient(cfg config.ProviderConfig, opts Options) *Client {
	c := &Client{
		cfg:           cfg,
		httpClient:    opts.HTTPClient,
		logger:        opts.Logger,
		tracer:        opts.Tracer,
		meter:         opts.Meter,
		fallbackDelay: opts.FallbackDelay,
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(instrumentationName)
	}
	if c.meter == nil {
		c.meter = otel.Meter(instrumentationName)
	}
	if c.fallbackDelay == 0 {
		c.fallbackDelay = DefaultFallbackDelay
	}

	var err error
	if c.duration, err = c.meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	); err != nil {
		c.logger.Warn("failed to create histogram", "error", err)
	}
	if c.fallbacks, err = c.meter.Int64Counter(
		"chat.completion.fallback",
		metric.WithDescription("Replies produced in demo mode"),
	); err != nil {
		c.logger.Warn("failed to create counter", "error", err)
	}
	if c.failures, err = c.meter.Int64Counter(
		"chat.completion.errors",
		metric.WithDescription("Failed provider calls"),
	); err != nil {
		c.logger.Warn("failed to create counter", "error", err)
	}
	return c
}

// DemoMode reports whether replies come from the canned fallback.
func (c *Client) DemoMode() bool {
	return !c.cfg.Enabled()
}

// Complete returns exactly one assistant message for window.
func (c *Client) Complete(ctx context.Context, window []session.Message) (session.Message, error) {
	if len(window) == 0 {
		return session.Message{}, fmt.Errorf("empty context window")
	}
	if c.DemoMode() {
		return c.fallback(ctx)
	}

	content, err := c.callProvider(ctx, window)
	if err != nil {
		return session.Message{}, err
	}
	return session.NewMessage(session.RoleAssistant, content), nil
}

// fallback waits out the simulated latency and returns the demo reply.
func (c *Client) fallback(ctx context.Context) (session.Message, error) {
	ctx, span := c.tracer.Start(ctx, "completion.fallback")
	defer span.End()

	c.logger.Warn("no API key configured, returning demo response")

	timer := time.NewTimer(c.fallbackDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return session.Message{}, &ProviderError{Message: ctx.Err().Error(), Err: ctx.Err()}
	}

	if c.fallbacks != nil {
		c.fallbacks.Add(ctx, 1)
	}
	return session.NewMessage(session.RoleAssistant, DemoText), nil
}

// callProvider posts the window to the configured endpoint
func (c *Client) callProvider(ctx context.Context, window []session.Message) (string, error) {
	requestID := uuid.NewString()
	fp := digest.Window(window)

	ctx, span := c.tracer.Start(ctx, "completion.remote", trace.WithAttributes(
		attribute.String("completion.id", requestID),
		attribute.String("completion.window_digest", fp),
		attribute.Int("completion.window_size", len(window)),
	))
	defer span.End()

	logger := c.logger.With("completion_id", requestID, "window", digest.Short(fp))

	content, usage, err := c.post(ctx, window)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if c.failures != nil {
			c.failures.Add(ctx, 1)
		}
		logger.Error("completion request failed", "error", err)
		return "", err
	}

	c.recordUsage(ctx, usage)
	logger.Info("completion received", "length", len(content))
	return content, nil
}

func (c *Client) post(ctx context.Context, window []session.Message) (string, map[string]interface{}, error) {
	start := time.Now()

	reqMessages := make([]backend.ChatMessage, len(window))
	for i, msg := range window {
		reqMessages[i] = backend.ChatMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}

	jsonData, err := json.Marshal(backend.OpenAIRequest{
		Model:       Model,
		Messages:    reqMessages,
		Temperature: Temperature,
	})
	if err != nil {
		return "", nil, connectivityError(fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", nil, connectivityError(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", nil, connectivityError(fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, connectivityError(fmt.Errorf("failed to read response: %w", err))
	}

	if c.duration != nil {
		c.duration.Record(ctx, float64(time.Since(start).Milliseconds()))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", nil, statusError(resp.StatusCode, body)
	}

	var apiResp backend.OpenAIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", nil, connectivityError(fmt.Errorf("failed to unmarshal response: %w", err))
	}
	if len(apiResp.Choices) == 0 {
		return "", nil, connectivityError(fmt.Errorf("empty response from provider"))
	}

	return apiResp.Choices[0].Message.Content, apiResp.Usage, nil
}

// recordUsage records OpenTelemetry metrics from usage data
func (c *Client) recordUsage(ctx context.Context, usage map[string]interface{}) {
	for key, value := range usage {
		intVal, ok := value.(float64)
		if !ok {
			continue
		}
		counter, err := c.meter.Int64Counter(
			fmt.Sprintf("llm.usage.%s", key),
			metric.WithDescription(fmt.Sprintf("LLM usage metric: %s", key)),
		)
		if err != nil {
			c.logger.Warn("failed to create counter", "key", key, "error", err)
			continue
		}
		counter.Add(ctx, int64(intVal))
	}
}
