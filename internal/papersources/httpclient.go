package papersources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/helixir/paper-digest-service/internal/domain"
)

// HTTPClientConfig configures the shared source HTTP client.
type HTTPClientConfig struct {
	Timeout    time.Duration
	RateLimit  float64 // sustained requests per second
	BurstSize  int
	MaxRetries int
	RetryDelay time.Duration
	UserAgent  string
}

// DefaultHTTPClientConfig returns conservative defaults suitable for
// polite scraping of public listing pages.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:    30 * time.Second,
		RateLimit:  1.0,
		BurstSize:  2,
		MaxRetries: 3,
		RetryDelay: 2 * time.Second,
		UserAgent:  "paper-digest-service/1.0",
	}
}

// HTTPClient is a rate-limited HTTP client with retry support for
// transient upstream failures. All source clients share this behavior so
// that per-source code only deals with parsing.
type HTTPClient struct {
	client     *http.Client
	limiter    *RateLimiter
	sourceName string
	config     HTTPClientConfig
}

// NewHTTPClient creates a client for the named source.
func NewHTTPClient(sourceName string, config HTTPClientConfig) *HTTPClient {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 2 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "paper-digest-service/1.0"
	}

	return &HTTPClient{
		client:     &http.Client{Timeout: config.Timeout},
		limiter:    NewRateLimiter(config.RateLimit, config.BurstSize),
		sourceName: sourceName,
		config:     config,
	}
}

// Do executes the request, honoring the rate limit and retrying on 429 and
// 5xx responses. The caller owns the response body on success.
func (c *HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			if err := resetRequestBody(req); err != nil {
				return nil, err
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		req.Header.Set("User-Agent", c.config.UserAgent)

		resp, err := c.client.Do(req.WithContext(ctx))
		if err != nil {
			lastErr = fmt.Errorf("%s request failed: %w", c.sourceName, err)
			continue
		}

		if !shouldRetry(resp.StatusCode) {
			return resp, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"), c.retryDelay(attempt+1))
			lastErr = &domain.RateLimitError{Source: c.sourceName, RetryAfter: retryAfter}
		} else {
			lastErr = &domain.ExternalAPIError{
				Source:     c.sourceName,
				StatusCode: resp.StatusCode,
				Message:    http.StatusText(resp.StatusCode),
			}
		}
		drainBody(resp)
	}

	return nil, fmt.Errorf("%s: exhausted %d retries: %w", c.sourceName, c.config.MaxRetries, lastErr)
}

// Get fetches the URL with the client's retry and rate-limit behavior.
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	return c.Do(ctx, req)
}

func (c *HTTPClient) retryDelay(attempt int) time.Duration {
	return c.config.RetryDelay * time.Duration(1<<(attempt-1))
}

func shouldRetry(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}

// parseRetryAfter interprets the Retry-After header, which may be either a
// delay in seconds or an HTTP date. Falls back to the supplied default.
func parseRetryAfter(header string, fallback time.Duration) time.Duration {
	if header == "" {
		return fallback
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(header); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return fallback
}

// resetRequestBody rewinds the body before a retry. Requests built with a
// body must carry GetBody, which net/http populates for common readers.
func resetRequestBody(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("failed to reset request body: %w", err)
	}
	req.Body = body
	return nil
}

// drainBody discards and closes the body so the connection can be reused.
func drainBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
