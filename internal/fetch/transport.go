package fetch

import (
	"context"
	"math"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// TransportRetry is the status-code retry policy applied inside the
// transport, below the Session's backoff loop.
type TransportRetry struct {
	// Total is the number of re-issues after the first response.
	Total int
	// BackoffFactor scales the sleep between re-issues: factor * 2^(n-1)
	// for retry n, with no sleep before the first retry.
	BackoffFactor time.Duration
	// StatusForcelist lists the statuses that trigger a re-issue.
	StatusForcelist []int
	// AllowedMethods lists the methods that may be re-issued.
	AllowedMethods []string
}

// DefaultTransportRetry returns 5 retries on 429 and 5xx gateway statuses for GET.
func DefaultTransportRetry() TransportRetry {
	return TransportRetry{
		Total:         5,
		BackoffFactor: 500 * time.Millisecond,
		StatusForcelist: []int{
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
		AllowedMethods: []string{http.MethodGet},
	}
}

func (r TransportRetry) retryable(method string, status int) bool {
	return slices.Contains(r.AllowedMethods, method) && slices.Contains(r.StatusForcelist, status)
}

// checkRetry re-issues forcelisted statuses only. Transport errors are
// left to the Session's backoff loop.
func (r TransportRetry) checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil || resp == nil {
		return false, nil
	}
	method := http.MethodGet
	if resp.Request != nil {
		method = resp.Request.Method
	}
	return r.retryable(method, resp.StatusCode), nil
}

// backoff adapts sleepFor to retryablehttp, whose attempt index is 0-based.
func (r TransportRetry) backoff(_, _ time.Duration, attempt int, resp *http.Response) time.Duration {
	return r.sleepFor(attempt+1, resp)
}

// sleepFor returns the pause before retry n (1-based).
func (r TransportRetry) sleepFor(n int, resp *http.Response) time.Duration {
	if d, ok := retryAfter(resp); ok {
		return d
	}
	if n <= 1 || r.BackoffFactor <= 0 {
		return 0
	}
	return time.Duration(float64(r.BackoffFactor) * math.Pow(2, float64(n-1)))
}

// retryAfter reads a Retry-After header in seconds on 429 and 503 responses.
func retryAfter(resp *http.Response) (time.Duration, bool) {
	if resp == nil {
		return 0, false
	}
	if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode != http.StatusServiceUnavailable {
		return 0, false
	}
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

// newRetryClient wraps base in a retryablehttp client driven by policy.
// When retries are exhausted the last response is returned as-is so the
// Session can classify it.
func newRetryClient(base *http.Client, policy TransportRetry, logger *zap.Logger) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.HTTPClient = base
	c.RetryMax = policy.Total
	c.CheckRetry = policy.checkRetry
	c.Backoff = policy.backoff
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	c.Logger = retryLogger{logger.Sugar()}
	return c
}

// retryLogger routes retryablehttp's leveled logs into zap. Per-attempt
// chatter goes to debug; the Session logs the failures that matter.
type retryLogger struct {
	s *zap.SugaredLogger
}

func (l retryLogger) Error(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l retryLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l retryLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l retryLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
