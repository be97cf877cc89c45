// Package httpclient wraps outbound provider requests with retries, backoff and optional pacing.
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plx/internal/metrics"
	"github.com/desertthunder/plx/internal/shared"
	"golang.org/x/time/rate"
)

// RetryPolicy controls how many times a request is retried and how long to wait in between.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy retries three times starting at one second, never waiting more than ten.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries: 3,
	BaseDelay:  time.Second,
	MaxDelay:   10 * time.Second,
}

// Backoff returns base * 2^attempt capped at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt && d < p.MaxDelay; i++ {
		d *= 2
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Client retries transient failures (429, 5xx, transport errors) of an underlying [http.Client].
//
// It keeps no state between calls apart from the optional [rate.Limiter].
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	policy     RetryPolicy
	logger     *log.Logger
	sleep      func(context.Context, time.Duration) error
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient sets the underlying client used for each attempt.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithPolicy replaces [DefaultRetryPolicy].
func WithPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.policy = p }
}

// WithLimiter paces every attempt, retries included, through l.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a [Client] with a 30 second per-attempt timeout unless overridden.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		policy:     DefaultRetryPolicy,
		logger:     log.Default(),
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the client's default [RetryPolicy].
func (c *Client) Policy() RetryPolicy { return c.policy }

// Do executes req with the client's default policy.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return c.DoPolicy(ctx, req, c.policy)
}

// DoPolicy executes req, retrying 429 and 5xx responses and transport errors according to policy.
//
// A Retry-After header is honored exactly; otherwise the wait is policy.Backoff(attempt).
// When retries run out the last response is returned as-is with a nil error, or the last
// transport error is returned as a [shared.NetworkError]. Cancelling ctx stops immediately.
func (c *Client) DoPolicy(ctx context.Context, req *http.Request, policy RetryPolicy) (*http.Response, error) {
	return c.do(ctx, req, policy, nil)
}

// DoInspect is [Client.Do] for services that report failures inside 2xx bodies.
//
// inspect sees every 2xx body. When it returns a temporary error (one with a
// Temporary() bool method reporting true) the attempt is retried like a 429.
// The response is returned with its body intact so the caller can decode it.
func (c *Client) DoInspect(ctx context.Context, req *http.Request, inspect func(body []byte) error) (*http.Response, error) {
	return c.do(ctx, req, c.policy, inspect)
}

type temporary interface {
	Temporary() bool
}

func (c *Client) do(ctx context.Context, req *http.Request, policy RetryPolicy, inspect func([]byte) error) (*http.Response, error) {
	replayable := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
	host := req.URL.Host

	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		attemptReq, err := prepare(ctx, req, attempt)
		if err != nil {
			return nil, err
		}

		final := attempt >= policy.MaxRetries || !replayable

		var wait time.Duration
		var reason string

		resp, err := c.httpClient.Do(attemptReq)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if final {
				return nil, &shared.NetworkError{Op: req.Method, URL: req.URL.Redacted(), Err: err}
			}
			wait, reason = policy.Backoff(attempt), "network"
			c.logger.Debug("request failed, retrying", "host", host, "attempt", attempt+1, "wait", wait, "error", err)
		case Retryable(resp.StatusCode):
			if final {
				return resp, nil
			}
			wait = policy.Backoff(attempt)
			if ra, ok := RetryAfter(resp.Header, time.Now()); ok {
				wait = ra
			}
			reason = "status_" + strconv.Itoa(resp.StatusCode)
			drain(resp)
			c.logger.Debug("retryable response", "host", host, "status", resp.StatusCode, "attempt", attempt+1, "wait", wait)
		case inspect != nil && resp.StatusCode >= 200 && resp.StatusCode < 300:
			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, &shared.NetworkError{Op: req.Method, URL: req.URL.Redacted(), Err: err}
			}
			resp.Body = io.NopCloser(bytes.NewReader(body))

			var tmp temporary
			bodyErr := inspect(body)
			if final || !errors.As(bodyErr, &tmp) || !tmp.Temporary() {
				return resp, nil
			}
			wait, reason = policy.Backoff(attempt), "body"
			c.logger.Debug("error in response body, retrying", "host", host, "attempt", attempt+1, "wait", wait, "error", bodyErr)
		default:
			return resp, nil
		}

		metrics.RecordRetry(host, reason)
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// StandardClient exposes c as an [http.Client] so SDKs that accept one share the retry policy.
func (c *Client) StandardClient() *http.Client {
	return &http.Client{Transport: &Transport{Client: c}}
}

// Transport adapts a [Client] to [http.RoundTripper].
type Transport struct {
	Client *Client
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.Client.Do(req.Context(), req)
}

// Retryable reports whether status is a throttling or server failure.
func Retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// RetryAfter parses a Retry-After header given in delta-seconds or as an HTTP date.
// Dates in the past yield a zero wait.
func RetryAfter(h http.Header, now time.Time) (time.Duration, bool) {
	v := h.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(v); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

// prepare clones req for one attempt, rewinding the body on retries.
func prepare(ctx context.Context, req *http.Request, attempt int) (*http.Request, error) {
	r := req.Clone(ctx)
	if attempt > 0 && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		r.Body = body
	}
	return r, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
