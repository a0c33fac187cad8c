package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/promptum/promptum/internal/auth"
	"github.com/promptum/promptum/internal/metrics"
	"github.com/promptum/promptum/internal/provider"
	"github.com/promptum/promptum/internal/retry"
)

// DefaultBaseURL is the public OpenRouter API root.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

const completionsPath = "/chat/completions"

// Options configures a Client.
type Options struct {
	BaseURL string
	Auth    auth.Provider
	Headers map[string]string
	Timeout time.Duration // per-attempt HTTP timeout
	Retry   retry.Config  // default retry behavior; Request.Retry overrides per call
	Logger  logrus.FieldLogger

	// InjectHeaders stamps extra headers onto every outgoing request,
	// after static headers and auth. Used for W3C trace context.
	InjectHeaders func(ctx context.Context, h http.Header)

	// Sleep pauses between attempts. Tests substitute this to run instantly.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (o Options) normalize() Options {
	if strings.TrimSpace(o.BaseURL) == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	if o.Retry.MaxAttempts == 0 {
		o.Retry = retry.DefaultConfig()
	}
	if o.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.Logger = l
	}
	if o.Sleep == nil {
		o.Sleep = sleepContext
	}
	return o
}

// Client speaks the OpenRouter chat completions API. It satisfies
// provider.Provider and must be connected before use:
//
//	client, _ := openrouter.New(opt)
//	if err := client.Connect(ctx); err != nil { ... }
//	defer client.Close()
type Client struct {
	opt      Options
	endpoint string

	mu        sync.RWMutex
	http      *http.Client
	connected bool
}

// New validates the options and returns an unconnected client.
func New(opt Options) (*Client, error) {
	opt = opt.normalize()
	if err := opt.Retry.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		opt:      opt,
		endpoint: strings.TrimSuffix(opt.BaseURL, "/") + completionsPath,
	}, nil
}

// Connect opens the client's usage scope. No network traffic happens here;
// the transport is built and kept for connection reuse across calls.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}
	c.http = newHTTPClient(c.opt.Timeout)
	c.connected = true
	return nil
}

// Close ends the usage scope and releases idle connections. Generate calls
// after Close fail with provider.ErrNotConnected.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil
	}
	c.connected = false
	c.http.CloseIdleConnections()
	return nil
}

// Generate runs one chat completion, retrying transient faults per the
// effective retry config. On success it returns the completion text and the
// call's metrics; latency always spans every attempt and backoff pause.
func (c *Client) Generate(ctx context.Context, req provider.Request) (string, *metrics.Metrics, error) {
	c.mu.RLock()
	httpClient, connected := c.http, c.connected
	c.mu.RUnlock()
	if !connected {
		return "", nil, provider.ErrNotConnected
	}

	cfg := c.opt.Retry
	if req.Retry != nil {
		cfg = *req.Retry
		if err := cfg.Validate(); err != nil {
			return "", nil, err
		}
	}

	body, err := buildPayload(req)
	if err != nil {
		return "", nil, err
	}

	m := &metrics.Metrics{}
	start := time.Now()
	parsed, err := c.doAttempts(ctx, httpClient, req.Model, body, cfg, m)
	m.SetLatency(time.Since(start))
	if err != nil {
		return "", nil, err
	}

	text := *parsed.Choices[0].Message.Content
	if parsed.Usage != nil {
		m.PromptTokens = parsed.Usage.PromptTokens
		m.CompletionTokens = parsed.Usage.CompletionTokens
		m.TotalTokens = parsed.Usage.TotalTokens
		m.CostUSD = parsed.Usage.TotalCost
	}
	return text, m, nil
}

func (c *Client) doAttempts(ctx context.Context, httpClient *http.Client, model string, body []byte, cfg retry.Config, m *metrics.Metrics) (*completionResponse, error) {
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		parsed, err := c.doOnce(ctx, httpClient, body)
		if err == nil {
			return parsed, nil
		}
		lastErr = err

		if !retryable(ctx, err) {
			return nil, err
		}

		// Don't delay after the last attempt.
		if attempt < cfg.MaxAttempts {
			delay := retry.Delay(attempt-1, cfg)
			c.opt.Logger.WithFields(logrus.Fields{
				"model":   model,
				"attempt": attempt,
				"delay":   delay,
			}).WithError(err).Warn("generate attempt failed, retrying")
			if err := c.opt.Sleep(ctx, delay); err != nil {
				return nil, err
			}
			m.AddRetryDelay(delay)
		}
	}
	return nil, &provider.RetryExhaustedError{Attempts: cfg.MaxAttempts, Last: lastErr}
}

func (c *Client) doOnce(ctx context.Context, httpClient *http.Client, body []byte) (*completionResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range c.opt.Headers {
		req.Header.Set(key, value)
	}
	if c.opt.Auth != nil {
		if err := c.opt.Auth.InjectHeader(ctx, req); err != nil {
			return nil, err
		}
	}
	if c.opt.InjectHeaders != nil {
		c.opt.InjectHeaders(ctx, req.Header)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &provider.HTTPError{StatusCode: resp.StatusCode, Body: truncate(string(data), 512)}
	}

	return parseCompletion(data)
}

// retryable reports whether a failed attempt is worth repeating. Rate
// limits and server-side errors are transient; other HTTP failures and
// malformed success bodies are terminal. Transport faults retry unless the
// caller's context is already done.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}

	var httpErr *provider.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}

	var invalid *provider.InvalidResponseError
	if errors.As(err, &invalid) {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

var _ provider.Provider = (*Client)(nil)
