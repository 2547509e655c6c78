// Package backend is the JSON-over-HTTP client for the real-estate REST API.
//
// A Client is built once at start-up and shared: it carries the base URI, the
// base headers, the per-request timeout and the optional retry, pacing and
// circuit breaker policies. It holds no per-call state.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"real-estate-catalog/internal/config"
)

const (
	// maxErrorBody bounds how much of a failed response is kept for messages.
	maxErrorBody = 64 << 10
	// maxBackoff caps the exponential retry delay.
	maxBackoff = 30 * time.Second
)

// ErrCircuitOpen is returned without calling the backend while the breaker is open.
var ErrCircuitOpen = errors.New("backend circuit breaker open")

// Options configures a Client.
type Options struct {
	BaseURI    string
	Timeout    time.Duration
	Headers    map[string]string
	MaxRetries int           // retries for idempotent requests only
	RetryDelay time.Duration // base delay, doubled per attempt

	// RequestsPerSecond paces outbound requests; 0 disables pacing.
	RequestsPerSecond float64
	Burst             int

	// BreakerThreshold is the consecutive-failure count that opens the
	// circuit breaker; 0 disables it.
	BreakerThreshold int
	BreakerReset     time.Duration

	HTTPClient  *http.Client
	Logger      *slog.Logger
	LogRequests bool
}

// Client issues JSON requests against the backend.
type Client struct {
	baseURI     string
	httpClient  *http.Client
	headers     http.Header
	timeout     time.Duration
	maxRetries  int
	retryDelay  time.Duration
	limiter     *rate.Limiter
	breaker     *CircuitBreaker
	logger      *slog.Logger
	logRequests bool
}

// New creates a Client.
func New(opts Options) (*Client, error) {
	if opts.BaseURI == "" {
		return nil, errors.New("backend base uri is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	headers := http.Header{}
	headers.Set("Accept", "application/json")
	headers.Set("Content-Type", "application/json")
	for k, v := range opts.Headers {
		headers.Set(k, v)
	}

	c := &Client{
		baseURI:     strings.TrimRight(opts.BaseURI, "/"),
		httpClient:  httpClient,
		headers:     headers,
		timeout:     opts.Timeout,
		maxRetries:  opts.MaxRetries,
		retryDelay:  opts.RetryDelay,
		logger:      logger,
		logRequests: opts.LogRequests,
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	if opts.BreakerThreshold > 0 {
		c.breaker = NewCircuitBreaker(opts.BreakerThreshold, opts.BreakerReset, logger)
	}
	return c, nil
}

// NewFromConfig creates a Client from the backend section of the configuration.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	baseURI, err := cfg.Backend.ResolveBaseURI()
	if err != nil {
		return nil, err
	}
	return New(Options{
		BaseURI:           baseURI,
		Timeout:           cfg.Backend.GetRequestTimeout(),
		Headers:           cfg.Backend.Headers,
		MaxRetries:        cfg.Backend.MaxRetries,
		RetryDelay:        cfg.Backend.GetRetryDelay(),
		RequestsPerSecond: cfg.Backend.RequestsPerSecond,
		Burst:             cfg.Backend.Burst,
		BreakerThreshold:  cfg.Backend.BreakerThreshold,
		BreakerReset:      cfg.Backend.GetBreakerReset(),
		Logger:            logger,
		LogRequests:       cfg.Logging.LogRequests,
	})
}

// BaseURI returns the backend root the client was built with.
func (c *Client) BaseURI() string {
	return c.baseURI
}

// GetJSON fetches path and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// PostJSON sends in as JSON to path and decodes the response into out.
// POST is never retried.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPost, path, in, out)
}

// do performs one logical request, retrying idempotent methods on transport
// errors, 429 and 5xx with exponential backoff.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = data
	}

	attempts := 1
	if method == http.MethodGet {
		attempts += c.maxRetries
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * c.retryDelay
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			c.logger.DebugContext(ctx, "retrying backend request",
				"method", method, "path", path, "attempt", attempt, "backoff", backoff, "err", err)
			if werr := sleepContext(ctx, backoff); werr != nil {
				return werr
			}
		}

		err = c.attempt(ctx, method, path, payload, out)
		if err == nil || !retryable(err) {
			return err
		}
	}
	return err
}

// attempt performs a single HTTP round trip bounded by the per-request timeout.
func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, out any) error {
	if c.breaker != nil && !c.breaker.CanProceed() {
		_, failures, total := c.breaker.GetStatus()
		return fmt.Errorf("%s %s: %w (%d/%d failures)", method, path, ErrCircuitOpen, failures, total)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURI+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range c.headers {
		req.Header[k] = v
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// the caller gave up, the backend did not fail
		if ctx.Err() != nil {
			return fmt.Errorf("%s %s: %w", method, path, ctx.Err())
		}
		c.recordFailure(0)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if c.logRequests {
		c.logger.DebugContext(ctx, "backend request",
			"method", method, "path", path, "status", resp.StatusCode,
			"duration_ms", time.Since(start).Milliseconds())
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			c.recordFailure(resp.StatusCode)
		} else {
			c.recordSuccess()
		}
		return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: data}
	}
	c.recordSuccess()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, &DecodeError{Err: err})
	}
	return nil
}

func (c *Client) recordSuccess() {
	if c.breaker != nil {
		c.breaker.RecordSuccess()
	}
}

func (c *Client) recordFailure(status int) {
	if c.breaker != nil {
		c.breaker.RecordFailure(status)
	}
}

// retryable reports whether a failed attempt may be repeated.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrCircuitOpen) {
		return false
	}
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests
	}
	// transport error or per-attempt timeout
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
