package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

const (
	DefaultRetries          = 2
	DefaultTimeout          = 15 * time.Second
	DefaultMaxTimeout       = 60 * time.Second
	DefaultRateLimitBackoff = 2000 * time.Millisecond
	DefaultRetryBackoff     = 600 * time.Millisecond
)

// Options holds the retry and timeout policy shared by every upstream call
type Options struct {
	// Retries is the number of additional attempts after the first one
	Retries int

	// Timeout applies to each attempt individually
	Timeout time.Duration

	// MaxTimeout is the ceiling for per-call timeout overrides
	MaxTimeout time.Duration

	// RateLimitBackoff is the wait before retrying a 429
	RateLimitBackoff time.Duration

	// RetryBackoff is the wait before retrying any other retryable failure
	RetryBackoff time.Duration

	// HTTPClient overrides the underlying client (optional)
	HTTPClient *http.Client
}

// DefaultOptions returns the policy used when nothing is configured
func DefaultOptions() Options {
	return Options{
		Retries:          DefaultRetries,
		Timeout:          DefaultTimeout,
		MaxTimeout:       DefaultMaxTimeout,
		RateLimitBackoff: DefaultRateLimitBackoff,
		RetryBackoff:     DefaultRetryBackoff,
	}
}

// Request describes a single HTTP call
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    any
}

// CallOption overrides the client policy for one call
type CallOption func(*callOptions)

type callOptions struct {
	retries int
	timeout time.Duration
}

// WithRetries sets the number of retries for one call
func WithRetries(n int) CallOption {
	return func(o *callOptions) {
		o.retries = n
	}
}

// WithTimeout sets the per-attempt timeout for one call
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) {
		o.timeout = d
	}
}

// Client wraps outbound calls with timeout and retry/backoff policy.
type Client struct {
	http   *resty.Client
	opts   Options
	logger *zap.Logger
}

// NewClient creates a new transport client
func NewClient(opts Options, logger *zap.Logger) *Client {
	defaults := DefaultOptions()
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.MaxTimeout <= 0 {
		opts.MaxTimeout = defaults.MaxTimeout
	}
	if opts.RateLimitBackoff <= 0 {
		opts.RateLimitBackoff = defaults.RateLimitBackoff
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaults.RetryBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var rc *resty.Client
	if opts.HTTPClient != nil {
		rc = resty.NewWithClient(opts.HTTPClient)
	} else {
		rc = resty.New()
	}
	// retries are owned by Call, never by resty
	rc.SetRetryCount(0)

	return &Client{
		http:   rc,
		opts:   opts,
		logger: logger,
	}
}

// Fetch performs an HTTP call and returns the parsed body: decoded JSON,
// an empty map for an empty body, or the raw text when the body is not JSON.
func (c *Client) Fetch(ctx context.Context, req Request, label string, opts ...CallOption) (any, error) {
	raw, err := c.do(ctx, req, label, opts...)
	if err != nil {
		return nil, err
	}
	return parseBody(raw), nil
}

// FetchJSON performs an HTTP call and decodes a JSON body into out.
// An empty body leaves out untouched.
func (c *Client) FetchJSON(ctx context.Context, req Request, label string, out any, opts ...CallOption) error {
	raw, err := c.do(ctx, req, label, opts...)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", label, err)
	}
	return nil
}

// Call runs fn under the client's per-attempt timeout and retry policy.
// SDK-backed adapters use it directly and report HTTP failures as *APIError.
func (c *Client) Call(ctx context.Context, label string, fn func(ctx context.Context) error, opts ...CallOption) error {
	o := c.callOptions(opts)

	var wait time.Duration
	attempt := 0
	backoff := retry.WithMaxRetries(uint64(o.retries), retry.BackoffFunc(func() (time.Duration, bool) {
		return wait, false
	}))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := c.attempt(ctx, label, o.timeout, fn)
		if err == nil {
			return nil
		}
		if IsTerminal(err) {
			c.logger.Debug("upstream call failed with terminal status",
				zap.String("label", label),
				zap.Int("attempt", attempt),
				zap.Int("status", StatusCode(err)))
			return err
		}
		wait = c.backoffFor(err)
		c.logger.Warn("upstream call failed",
			zap.String("label", label),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", o.retries+1),
			zap.Duration("backoff", wait),
			zap.Error(err))
		return retry.RetryableError(err)
	})
}

func (c *Client) do(ctx context.Context, req Request, label string, opts ...CallOption) ([]byte, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
		if req.Body != nil {
			method = http.MethodPost
		}
	}

	var body []byte
	err := c.Call(ctx, label, func(ctx context.Context) error {
		r := c.http.R().SetContext(ctx).SetHeaders(req.Headers)
		if req.Body != nil {
			r.SetBody(req.Body)
		}
		resp, err := r.Execute(method, req.URL)
		if err != nil {
			return err
		}
		if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
			return &APIError{
				Label:  label,
				Status: resp.StatusCode(),
				Body:   string(resp.Body()),
			}
		}
		body = resp.Body()
		return nil
	}, opts...)
	return body, err
}

func (c *Client) attempt(ctx context.Context, label string, timeout time.Duration, fn func(ctx context.Context) error) error {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(attemptCtx)
	if err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return &TimeoutError{Label: label, Timeout: timeout}
	}
	return err
}

func (c *Client) backoffFor(err error) time.Duration {
	if StatusCode(err) == http.StatusTooManyRequests {
		return c.opts.RateLimitBackoff
	}
	return c.opts.RetryBackoff
}

func (c *Client) callOptions(opts []CallOption) callOptions {
	o := callOptions{
		retries: c.opts.Retries,
		timeout: c.opts.Timeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.retries < 0 {
		o.retries = 0
	}
	if o.timeout <= 0 {
		o.timeout = c.opts.Timeout
	}
	if o.timeout > c.opts.MaxTimeout {
		o.timeout = c.opts.MaxTimeout
	}
	return o
}

func parseBody(raw []byte) any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return string(raw)
	}
	return v
}
