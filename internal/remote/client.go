package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/stride/internal/logging"
	"github.com/aretw0/stride/pkg/domain"
	"golang.org/x/time/rate"
)

// Default policy values.
const (
	DefaultMaxRetries      = 2
	DefaultTimeout         = 90 * time.Second
	DefaultExtendedTimeout = 120 * time.Second
	DefaultBackoffBase     = 2 * time.Second
)

// Attempt outcomes reported to observers.
const (
	OutcomeSuccess        = "success"
	OutcomeClientError    = "client_error"
	OutcomeServerError    = "server_error"
	OutcomeTimeout        = "timeout"
	OutcomeTransportError = "transport_error"
)

// maxErrorBody bounds how much of a failed response is kept in a StatusError.
const maxErrorBody = 512

// CallOptions tunes a single call. Zero fields take the defaults.
type CallOptions struct {
	// MaxRetries is the total number of attempts.
	MaxRetries int
	// Timeout bounds each attempt.
	Timeout time.Duration
	// ExtendedWorkload raises the per-attempt timeout to the extended value.
	ExtendedWorkload bool
}

// DefaultCallOptions returns {2, 90s, false}.
func DefaultCallOptions() CallOptions {
	return CallOptions{MaxRetries: DefaultMaxRetries, Timeout: DefaultTimeout}
}

// Response is a completed exchange. 4xx responses are returned as-is.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Attempts   int
	Duration   time.Duration
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// DecodeJSON unmarshals the body into v.
func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

// AttemptObserver receives one event per attempt.
type AttemptObserver func(ctx context.Context, ev *domain.RemoteAttemptEvent)

// Client performs JSON POSTs with a per-attempt timeout, retry and linear
// backoff policy.
type Client struct {
	httpClient      *http.Client
	backoffBase     time.Duration
	extendedTimeout time.Duration
	headers         http.Header
	limiter         *rate.Limiter
	logger          *slog.Logger
	observer        AttemptObserver
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithBackoffBase sets the backoff unit; attempt n waits n*base.
func WithBackoffBase(d time.Duration) Option {
	return func(c *Client) {
		c.backoffBase = d
	}
}

// WithExtendedTimeout sets the timeout used for extended workloads.
func WithExtendedTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.extendedTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithHeader adds a header sent on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers.Add(key, value)
	}
}

// WithRateLimit throttles attempts to rps with the given burst.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithAttemptObserver registers a callback invoked after every attempt.
func WithAttemptObserver(o AttemptObserver) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient:      &http.Client{},
		backoffBase:     DefaultBackoffBase,
		extendedTimeout: DefaultExtendedTimeout,
		headers:         http.Header{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.WithCategory(c.logger, logging.CategoryRemote)
	return c
}

// Call POSTs payload as JSON to endpoint.
//
// 2xx and 4xx responses are returned immediately. A 5xx response or a
// transport failure is retried after BackoffBase*attempt; once attempts are
// exhausted the last error is returned. A deadline expiry returns a
// *TimeoutError without further attempts.
func (c *Client) Call(ctx context.Context, endpoint string, payload any, opts CallOptions) (*Response, error) {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	timeout := opts.Timeout
	if opts.ExtendedWorkload {
		timeout = c.extendedTimeout
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limiter: %w", err)
			}
		}

		attemptStart := time.Now()
		resp, err := c.attempt(ctx, endpoint, body, timeout)
		elapsed := time.Since(attemptStart)

		switch {
		case err == nil && resp.StatusCode < 500:
			outcome := OutcomeSuccess
			if resp.StatusCode >= 400 {
				outcome = OutcomeClientError
			}
			c.observe(ctx, endpoint, attempt, resp.StatusCode, outcome, elapsed)
			resp.Attempts = attempt
			resp.Duration = time.Since(start)
			return resp, nil

		case err == nil:
			c.observe(ctx, endpoint, attempt, resp.StatusCode, OutcomeServerError, elapsed)
			lastErr = &StatusError{
				Endpoint:   endpoint,
				StatusCode: resp.StatusCode,
				Body:       truncate(resp.Body),
			}

		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			c.observe(ctx, endpoint, attempt, 0, OutcomeTimeout, elapsed)
			c.logger.Error("remote call timed out", "endpoint", endpoint, "attempt", attempt, "timeout", timeout)
			return nil, &TimeoutError{Endpoint: endpoint, Timeout: timeout, Attempt: attempt}

		case ctx.Err() != nil:
			// The caller gave up; there is nothing left to retry for.
			return nil, ctx.Err()

		default:
			c.observe(ctx, endpoint, attempt, 0, OutcomeTransportError, elapsed)
			lastErr = fmt.Errorf("request to %s failed: %w", endpoint, err)
		}

		c.logger.Warn("remote attempt failed",
			"endpoint", endpoint,
			"attempt", attempt,
			"max_retries", opts.MaxRetries,
			"error", lastErr,
		)

		if attempt < opts.MaxRetries {
			if err := sleep(ctx, c.backoffBase*time.Duration(attempt)); err != nil {
				return nil, err
			}
		}
	}

	c.logger.Error("remote call exhausted retries", "endpoint", endpoint, "error", lastErr)
	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, endpoint string, body []byte, timeout time.Duration) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func (c *Client) observe(ctx context.Context, endpoint string, attempt, status int, outcome string, d time.Duration) {
	if c.observer == nil {
		return
	}
	c.observer(ctx, &domain.RemoteAttemptEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventRemoteAttempt},
		Endpoint:  endpoint,
		Attempt:   attempt,
		Status:    status,
		Outcome:   outcome,
		Duration:  d,
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody])
	}
	return string(b)
}
