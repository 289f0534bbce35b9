package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"resty.dev/v3"

	"github.com/alexcolls/options-ztrading/internal/metrics"
	"github.com/alexcolls/options-ztrading/internal/ratelimit"
)

const (
	// Default retry configuration
	defaultRetryCount       = 3
	defaultRetryWaitTime    = 1 * time.Second
	defaultRetryMaxWaitTime = 30 * time.Second
	defaultBackoffFactor    = 2.0
	defaultTimeout          = 30 * time.Second
	defaultRateLimitDelay   = 1 * time.Second

	// maxRetryAfter caps the wait honored from a Retry-After header.
	maxRetryAfter = time.Hour

	// APIKeyParam is the query parameter that carries the credential.
	APIKeyParam = "apiKey"
)

// Options configures a Client.
type Options struct {
	BaseURL string
	APIKey  string

	// Timeout bounds each individual HTTP exchange.
	Timeout time.Duration

	// RetryCount is the number of extra attempts for transient failures
	// (500/502/503/504, network errors, request timeouts).
	RetryCount int
	// RetryWaitTime is the first backoff; each later one is multiplied by
	// BackoffFactor and capped at RetryMaxWaitTime.
	RetryWaitTime    time.Duration
	RetryMaxWaitTime time.Duration
	BackoffFactor    float64

	// RateLimitDelay is used after a 429 whose Retry-After is absent or malformed.
	RateLimitDelay time.Duration
	// MaxRateLimitRetries caps consecutive 429 retries for one call.
	// Zero keeps retrying for as long as upstream answers 429.
	MaxRateLimitRetries int

	Limiter *ratelimit.Limiter
	Logger  *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.RetryCount < 0 {
		o.RetryCount = defaultRetryCount
	}
	if o.RetryWaitTime <= 0 {
		o.RetryWaitTime = defaultRetryWaitTime
	}
	if o.RetryMaxWaitTime <= 0 {
		o.RetryMaxWaitTime = defaultRetryMaxWaitTime
	}
	if o.BackoffFactor < 1 {
		o.BackoffFactor = defaultBackoffFactor
	}
	if o.RateLimitDelay <= 0 {
		o.RateLimitDelay = defaultRateLimitDelay
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Client issues authenticated GET requests against the upstream API. It
// retries transient failures, waits out 429 responses, and is safe for
// concurrent use; the underlying connection pool is shared by all callers.
type Client struct {
	http    *resty.Client
	opts    Options
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
}

// newHTTPClient creates the resty client used by Client: base URL, JSON
// accept header, per-request timeout, and the credential attached to every
// request, including absolute cursor URLs.
func newHTTPClient(opts Options) *resty.Client {
	return resty.New().
		SetBaseURL(opts.BaseURL).
		SetHeader("Accept", "application/json").
		SetTimeout(opts.Timeout).
		SetQueryParam(APIKeyParam, opts.APIKey)
}

// NewClient creates a Client. Zero-valued options fall back to defaults;
// a negative RetryCount selects the default count.
func NewClient(opts Options) *Client {
	opts = opts.withDefaults()
	return &Client{
		http:    newHTTPClient(opts),
		opts:    opts,
		limiter: opts.Limiter,
		logger:  opts.Logger,
		sleep:   sleepContext,
		now:     time.Now,
	}
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.http.Close()
}

// Get requests endpoint with params and decodes the JSON object body.
// endpoint is either a path relative to the base URL or an absolute URL.
//
// HTTP 429 is retried after the server's Retry-After delay without counting
// against RetryCount. Transient failures are retried RetryCount times with
// exponential backoff. Anything else fails with *TransportError.
func (c *Client) Get(ctx context.Context, endpoint string, params map[string]string) (map[string]any, error) {
	var (
		retries   int
		throttled int
		backoff   = c.opts.RetryWaitTime
	)

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.withURL(NewCanceledError(err), endpoint)
		}

		var payload map[string]any
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(params).
			SetResult(&payload).
			Get(endpoint)

		status := statusCode(resp)
		metrics.ObserveRequest(status)

		if err == nil && status == http.StatusTooManyRequests {
			throttled++
			if c.opts.MaxRateLimitRetries > 0 && throttled > c.opts.MaxRateLimitRetries {
				rl := NewRateLimitError(status)
				rl.Message = fmt.Sprintf("rate limit exceeded after %d retries", c.opts.MaxRateLimitRetries)
				return nil, c.withURL(rl, endpoint)
			}

			delay := parseRetryAfter(resp.Header().Get("Retry-After"), c.opts.RateLimitDelay, c.now())
			metrics.RateLimitWaitSeconds.Observe(delay.Seconds())
			c.logger.Info("rate limited, backing off",
				"url", endpoint,
				"retry_after", delay,
				"attempt", throttled)

			if err := c.sleep(ctx, delay); err != nil {
				return nil, c.withURL(NewCanceledError(err), endpoint)
			}
			continue
		}

		terr := classify(ctx, status, err)
		if terr == nil && payload == nil {
			terr = NewValidationError(fmt.Sprintf("response is not a JSON object (Content-Type %q)",
				resp.Header().Get("Content-Type")), nil)
		}
		if terr == nil {
			return payload, nil
		}
		c.withURL(terr, endpoint)

		if !terr.Retryable {
			return nil, terr
		}
		if retries >= c.opts.RetryCount {
			terr.Message = fmt.Sprintf("%s after %d retries", terr.Message, retries)
			return nil, terr
		}

		retries++
		retryHook(c.logger, terr, retries, backoff)
		metrics.RetriesTotal.WithLabelValues(string(terr.Type)).Inc()

		if err := c.sleep(ctx, backoff); err != nil {
			return nil, c.withURL(NewCanceledError(err), endpoint)
		}
		backoff = nextBackoff(backoff, c.opts.BackoffFactor, c.opts.RetryMaxWaitTime)
	}
}

func (c *Client) withURL(e *TransportError, endpoint string) *TransportError {
	e.URL = endpoint
	return e
}

// classify maps the outcome of one exchange to a TransportError, or nil on success.
func classify(ctx context.Context, status int, err error) *TransportError {
	if err != nil {
		if ctx.Err() != nil {
			return NewCanceledError(ctx.Err())
		}
		if status >= 200 && status < 300 {
			return NewValidationError("failed to decode response", err)
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return NewTimeoutError(err)
		}
		return NewNetworkError(err)
	}

	if status >= 200 && status < 300 {
		return nil
	}
	return ClassifyHTTPError(status)
}

// retryHook logs retry attempts for observability
func retryHook(logger *slog.Logger, terr *TransportError, attempt int, backoff time.Duration) {
	if terr.StatusCode > 0 {
		logger.Debug("retrying request due to status code",
			"url", terr.URL,
			"attempt", attempt,
			"backoff", backoff,
			"status_code", terr.StatusCode)
		return
	}

	logger.Debug("retrying request due to error",
		"url", terr.URL,
		"attempt", attempt,
		"backoff", backoff,
		"error", terr.Error())
}

func statusCode(resp *resty.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode()
}

func nextBackoff(current time.Duration, factor float64, max time.Duration) time.Duration {
	next := time.Duration(float64(current) * factor)
	if next > max {
		return max
	}
	return next
}

// parseRetryAfter reads a Retry-After value given either as delta-seconds
// or as an HTTP-date, capped at maxRetryAfter. Absent or malformed values
// yield fallback.
func parseRetryAfter(v string, fallback time.Duration, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	if sec, err := strconv.ParseFloat(v, 64); err == nil {
		if sec < 0 || math.IsNaN(sec) || math.IsInf(sec, 0) {
			return fallback
		}
		if sec >= maxRetryAfter.Seconds() {
			return maxRetryAfter
		}
		return time.Duration(sec * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d <= 0 {
			return 0
		}
		return min(d, maxRetryAfter)
	}
	return fallback
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
