// Package fetch provides the pooled HTTP session used to call the search
// API: status-code retries in the transport, exponential backoff around
// transport failures, rotating User-Agents and a request-rate floor.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// DefaultMaxAttempts is the number of backoff retries after the first call.
const DefaultMaxAttempts = 5

// DefaultUserAgents is the User-Agent pool rotated across requests.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:123.0) Gecko/20100101 Firefox/123.0",
}

// Options configures a Session.
type Options struct {
	// Timeout bounds each HTTP attempt, from dialing to reading the body.
	Timeout    time.Duration
	UserAgents []string
	// Headers are sent on every request; per-call headers override them.
	Headers map[string]string
	// RequestsPerSecond is a hard floor on request spacing. Zero disables it.
	RequestsPerSecond float64

	Retry       TransportRetry
	Backoff     Backoff
	MaxAttempts int

	Logger *zap.Logger
	// Transport replaces the pooled base transport, mainly for tests.
	Transport http.RoundTripper
	// Sleep replaces the context-aware sleep used between backoff retries.
	Sleep func(context.Context, time.Duration) error
}

// DefaultOptions returns sensible defaults for fetching.
func DefaultOptions() *Options {
	return &Options{
		Timeout:     DefaultTimeout,
		UserAgents:  DefaultUserAgents,
		Retry:       DefaultTransportRetry(),
		Backoff:     DefaultBackoff(),
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Session is a run-scoped HTTP handle. It is safe for concurrent use.
type Session struct {
	client      *http.Client
	base        *http.Client
	headers     map[string]string
	userAgents  []string
	limiter     *rate.Limiter
	retry       TransportRetry
	backoff     Backoff
	maxAttempts int
	sleep       func(context.Context, time.Duration) error
	logger      *zap.Logger
}

// NewSession builds a Session. Callers must Close it when the run ends.
func NewSession(opts *Options) *Session {
	if opts == nil {
		opts = DefaultOptions()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = Sleep
	}
	userAgents := opts.UserAgents
	if len(userAgents) == 0 {
		userAgents = DefaultUserAgents
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts < 0 {
		maxAttempts = 0
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	transport := opts.Transport
	if transport == nil {
		transport = newPooledTransport(timeout)
	}
	base := &http.Client{Transport: transport, Timeout: timeout}

	return &Session{
		client:      newRetryClient(base, opts.Retry, logger).StandardClient(),
		base:        base,
		headers:     opts.Headers,
		userAgents:  userAgents,
		limiter:     rate.NewLimiter(limit, 1),
		retry:       opts.Retry,
		backoff:     opts.Backoff,
		maxAttempts: maxAttempts,
		sleep:       sleep,
		logger:      logger,
	}
}

// newPooledTransport bounds the connection phases; the client Timeout
// bounds the whole attempt including the body.
func newPooledTransport(timeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
	}
}

// Fetch GETs a JSON document. Transport failures and exhausted retryable
// statuses are retried with exponential backoff up to MaxAttempts times;
// every other failure is returned immediately.
func (s *Session) Fetch(ctx context.Context, rawURL string, query url.Values, headers http.Header) (json.RawMessage, error) {
	for attempt := 0; ; attempt++ {
		body, err := s.do(ctx, rawURL, query, headers)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !IsRetryable(err) || attempt >= s.maxAttempts {
			return nil, err
		}

		wait := s.backoff.Wait(attempt)
		s.logger.Warn("request failed, retrying",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", s.maxAttempts),
			zap.Duration("wait", wait),
			zap.Error(err))
		if err := s.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func (s *Session) do(ctx context.Context, rawURL string, query url.Values, headers http.Header) (json.RawMessage, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, &Error{URL: rawURL, Kind: KindInvalid, Message: "invalid URL", Cause: err}
	}
	if len(query) > 0 {
		q := u.Query()
		for key, values := range query {
			q[key] = values
		}
		u.RawQuery = q.Encode()
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &Error{URL: rawURL, Kind: KindInvalid, Message: "failed to create request", Cause: err}
	}
	for key, value := range s.headers {
		req.Header.Set(key, value)
	}
	req.Header.Set("User-Agent", s.userAgents[rand.IntN(len(s.userAgents))])
	for key, values := range headers {
		req.Header[http.CanonicalHeaderKey(key)] = slices.Clone(values)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &Error{URL: rawURL, Kind: KindTransport, Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{URL: rawURL, Kind: KindTransport, Message: "failed to read response body", Cause: err}
	}

	s.logger.Debug("fetched",
		zap.String("url", u.String()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &Error{URL: rawURL, Kind: KindNotFound, StatusCode: resp.StatusCode, Message: "not found"}
	case s.retry.retryable(http.MethodGet, resp.StatusCode):
		return nil, &Error{URL: rawURL, Kind: KindTransient, StatusCode: resp.StatusCode,
			Message: fmt.Sprintf("HTTP status %d after %d retries", resp.StatusCode, s.retry.Total)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &Error{URL: rawURL, Kind: KindStatus, StatusCode: resp.StatusCode,
			Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
	}

	if !json.Valid(body) {
		return nil, &Error{URL: rawURL, Kind: KindDecode, StatusCode: resp.StatusCode, Message: "response is not JSON"}
	}
	return body, nil
}

// Close releases idle pooled connections.
func (s *Session) Close() {
	s.base.CloseIdleConnections()
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
