package traderepublic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// httpResponse is the decoded result of a successful call, following the
// reference's pattern of reading the whole body up front rather than
// streaming it to callers.
type httpResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// apiErrorBody is the best-effort shape of an error response, mirroring the
// reference's SaxoErrorResponse decode-then-fallback idiom.
type apiErrorBody struct {
	Message      string `json:"message"`
	ErrorMessage string `json:"errorMessage"`
}

func (e apiErrorBody) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.ErrorMessage
}

// rateLimitedHTTPClient wraps an http.Client with a token bucket of
// cfg.HTTPRatePerSec (1 req/s by default), a 10s per-request timeout, and
// exponential-backoff retry on network errors, 5xx, and 429. The bucket is
// shared by every request made through one rateLimitedHTTPClient; separate
// instances have separate buckets. It is consumed only by the auth
// controller's login/2FA/refresh calls.
type rateLimitedHTTPClient struct {
	inner   *http.Client
	limiter *rate.Limiter
	cfg     Config
	logger  *slog.Logger
}

func newRateLimitedHTTPClient(inner *http.Client, cfg Config, logger *slog.Logger) *rateLimitedHTTPClient {
	if inner == nil {
		inner = &http.Client{}
	}
	return &rateLimitedHTTPClient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(cfg.HTTPRatePerSec), 1),
		cfg:     cfg,
		logger:  logger,
	}
}

// do performs method against url with headers and body, retrying per the
// design's policy. Each attempt, including retries, consumes a fresh token
// from the rate limiter — the "fresh token per attempt" resolution to the
// open question on retry/rate-limit interaction.
func (c *rateLimitedHTTPClient) do(ctx context.Context, method, url string, headers http.Header, body []byte) (*httpResponse, error) {
	totalAttempts := c.cfg.HTTPRetries + 1
	backoff := c.cfg.HTTPMinBackoff

	var lastErr error
	for attempt := 1; attempt <= totalAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		resp, retryable, err := c.attempt(ctx, method, url, headers, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		retriesLeft := totalAttempts - attempt
		if !retryable || retriesLeft == 0 {
			break
		}

		c.logger.Warn("http request failed, retrying",
			"method", method, "url", url,
			"attempt", attempt, "retries_left", retriesLeft,
			"backoff", backoff, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * c.cfg.HTTPBackoffFactor)
		if backoff > c.cfg.HTTPMaxBackoff {
			backoff = c.cfg.HTTPMaxBackoff
		}
	}

	return nil, lastErr
}

// attempt runs a single HTTP round trip with the per-request timeout. The
// second return value reports whether the error, if any, is retryable.
func (c *rateLimitedHTTPClient) attempt(ctx context.Context, method, url string, headers http.Header, body []byte) (*httpResponse, bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.HTTPTimeout)
	defer cancel()

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, url, bodyReader)
	if err != nil {
		return nil, false, fmt.Errorf("failed to build request: %w", err)
	}
	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.inner.Do(req)
	if err != nil {
		// Network errors, including context-deadline aborts, are retryable.
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, true, c.decodeError(resp.StatusCode, respBody)
	}
	if resp.StatusCode >= 400 {
		return nil, false, c.decodeError(resp.StatusCode, respBody)
	}

	return &httpResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: respBody}, false, nil
}

func (c *rateLimitedHTTPClient) decodeError(statusCode int, body []byte) error {
	var apiErr apiErrorBody
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.text() != "" {
		return fmt.Errorf("http %d: %s", statusCode, apiErr.text())
	}
	return fmt.Errorf("http %d: %s", statusCode, string(body))
}
