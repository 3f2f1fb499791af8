// Package platform defines the adapter contract shared by the chess.com and
// Lichess HTTP clients. Each platform implements its own Client, but both
// are built on the same rate-limited HTTP core and report every call
// through the same FetchLogFunc hook — the "Dual-platform duplication"
// design note calls for exactly this: a small adapter interface shared by
// the job store, scheduler, and worker loop, with only the wire-format
// translation varying per platform.
package platform

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// FetchLogFunc journals one outbound HTTP call, success or failure.
type FetchLogFunc func(ctx context.Context, url string, statusCode int, etag, lastModified string, fetchErr error)

// NetworkError wraps a transport-level failure (DNS, timeout, connection reset).
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("network error fetching %s: %v", e.URL, e.Err) }
func (e *NetworkError) Unwrap() error  { return e.Err }

// UpstreamError wraps a non-200 HTTP response.
type UpstreamError struct {
	URL    string
	Status int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s returned HTTP %d", e.URL, e.Status)
}

// Retryable reports whether the status code is transient (429 or 5xx).
// The worker loop does not consult it: every failed job, a 404 included,
// is requeued with backoff until its attempt cap makes it terminal.
func (e *UpstreamError) Retryable() bool {
	return e.Status == 429 || e.Status >= 500
}

// DecodeError wraps a 200 response whose body could not be parsed as JSON.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode error for %s: %v", e.URL, e.Err) }
func (e *DecodeError) Unwrap() error  { return e.Err }

// FetchResult is the raw outcome of an HTTP GET.
type FetchResult struct {
	StatusCode   int
	Body         []byte
	ETag         string
	LastModified string
}

// Client is the shared HTTP core for a platform adapter: a reused
// *http.Client, a token-bucket limiter, a required User-Agent, and a fetch
// log hook. Platform packages embed this and add kind-specific methods.
type Client struct {
	httpClient *http.Client
	userAgent  string
	limiter    *rate.Limiter
	logFetch   FetchLogFunc
}

// NewClient creates the shared HTTP core. requestsPerMinute <= 0 disables
// rate limiting (useful in tests).
func NewClient(timeout time.Duration, userAgent string, requestsPerMinute int, logFetch FetchLogFunc) *Client {
	var limiter *rate.Limiter
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), 1)
	}
	if logFetch == nil {
		logFetch = func(context.Context, string, int, string, string, error) {}
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
		limiter:    limiter,
		logFetch:   logFetch,
	}
}

// FetchJSON performs a rate-limited GET, journals the call via FetchLogFunc,
// and returns the raw result. A non-200 response returns the status with no
// error — callers decide what "success" means per endpoint.
func (c *Client) FetchJSON(ctx context.Context, url string, extraHeaders map[string]string) (FetchResult, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return FetchResult{}, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return FetchResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		netErr := &NetworkError{URL: url, Err: err}
		c.logFetch(ctx, url, 0, "", "", netErr)
		return FetchResult{}, netErr
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		netErr := &NetworkError{URL: url, Err: err}
		c.logFetch(ctx, url, resp.StatusCode, "", "", netErr)
		return FetchResult{}, netErr
	}

	etag := resp.Header.Get("ETag")
	lastModified := resp.Header.Get("Last-Modified")
	c.logFetch(ctx, url, resp.StatusCode, etag, lastModified, nil)

	return FetchResult{
		StatusCode:   resp.StatusCode,
		Body:         body,
		ETag:         etag,
		LastModified: lastModified,
	}, nil
}
