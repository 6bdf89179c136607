// Package fetch downloads order assets with retry and writes them into a
// product group's output directory.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"
)

// StatusError is returned for a non-200 response.
type StatusError struct {
	URL    string
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("bad status '%s' fetching %s", e.Status, e.URL)
	}
	return fmt.Sprintf("bad status '%s' fetching %s: %s", e.Status, e.URL, e.Body)
}

// Transient reports whether the status is worth retrying.
func (e *StatusError) Transient() bool {
	switch e.Code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Client issues idempotent GETs with exponential backoff.
type Client struct {
	HTTP          *http.Client
	RetryCount    int
	BackoffFactor float64
	UserAgent     string
	Logger        *slog.Logger

	// sleep is swapped in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient builds a Client whose underlying http.Client enforces timeout
// on every call.
func NewClient(timeout time.Duration, retryCount int, backoffFactor float64) *Client {
	return &Client{
		HTTP:          &http.Client{Timeout: timeout},
		RetryCount:    retryCount,
		BackoffFactor: backoffFactor,
		UserAgent:     "order-asset-packer/1.0 (Go-client)",
	}
}

// Backoff returns the wait before retry number attempt+1.
func (c *Client) Backoff(attempt int) time.Duration {
	secs := c.BackoffFactor * math.Pow(2, float64(attempt))
	return time.Duration(secs * float64(time.Second))
}

// Get downloads url. Transient statuses and transport failures are retried up
// to RetryCount extra times; anything else fails immediately.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sleep := c.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 0; attempt <= c.RetryCount; attempt++ {
		body, err := c.getOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable(ctx, err) || attempt == c.RetryCount {
			break
		}
		wait := c.Backoff(attempt)
		logger.Debug("retrying download", "url", url, "attempt", attempt+1, "wait", wait, "err", err)
		if err := sleep(ctx, wait); err != nil {
			return nil, errors.Join(lastErr, err)
		}
	}
	return nil, lastErr
}

func (c *Client) getOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request for %s: %w", url, err)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	req.Header.Set("Accept", "image/*,*/*;q=0.8")

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http do request for %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{URL: url, Code: resp.StatusCode, Status: resp.Status, Body: string(excerpt)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed reading body from %s: %w", url, err)
	}
	return body, nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Transient()
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
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
