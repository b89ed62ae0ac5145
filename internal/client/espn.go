package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"tipsterarena/backend/internal/metrics"
	"tipsterarena/backend/internal/models"
)

// DateParam is the provider's date format, used for both ends of a range
const DateParam = "20060102"

// StatusError is returned for a non-2xx provider response
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether the status is worth retrying
func (e *StatusError) IsRetryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Options configures a Client
type Options struct {
	BaseURL     string
	Timeout     time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
	Concurrency int
	UserAgent   string
}

// Client is the ESPN-style scoreboard/summary API client
type Client struct {
	baseURL     string
	userAgent   string
	httpClient  *http.Client
	rateLimiter chan struct{} // Rate limiting semaphore
	maxRetries  int
	retryDelay  time.Duration
}

// NewClient creates a new provider client
func NewClient(opts Options) *Client {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "TipsterArena/1.0"
	}

	rateLimiter := make(chan struct{}, opts.Concurrency)
	for i := 0; i < opts.Concurrency; i++ {
		rateLimiter <- struct{}{}
	}

	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		userAgent:   opts.UserAgent,
		rateLimiter: rateLimiter,
		maxRetries:  opts.MaxRetries,
		retryDelay:  opts.RetryDelay,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// get performs a GET with retry and rate limiting. endpoint labels metrics.
func (c *Client) get(ctx context.Context, endpoint, path string, params url.Values) ([]byte, error) {
	u := fmt.Sprintf("%s/%s", c.baseURL, strings.TrimLeft(path, "/"))
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 1x, 2x, 4x
			backoff := c.retryDelay * time.Duration(1<<uint(attempt-1))
			log.Info().
				Str("url", u).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Retrying API request after backoff")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		body, err := c.do(ctx, endpoint, u, attempt)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.IsRetryable() {
			return nil, err
		}

		if attempt < c.maxRetries {
			log.Warn().
				Err(err).
				Str("url", u).
				Int("attempt", attempt+1).
				Msg("Received retryable error, will retry")
		}
	}

	return nil, lastErr
}

func (c *Client) do(ctx context.Context, endpoint, u string, attempt int) ([]byte, error) {
	// Rate limiting: acquire semaphore
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.rateLimiter:
	}
	defer func() { c.rateLimiter <- struct{}{} }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	log.Debug().
		Str("url", u).
		Int("attempt", attempt+1).
		Msg("Making API request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordAPICall(endpoint, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	metrics.RecordAPICall(endpoint, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet}
	}

	log.Debug().
		Str("url", u).
		Int("status", resp.StatusCode).
		Int("size", len(body)).
		Msg("API request successful")

	return body, nil
}

// FetchScoreboard fetches events for sportPath (e.g. "soccer/eng.1") between
// from and to inclusive. The raw body is returned for archiving.
func (c *Client) FetchScoreboard(ctx context.Context, sportPath string, from, to time.Time) (*models.ESPNScoreboard, []byte, error) {
	params := url.Values{}
	params.Set("dates", from.Format(DateParam)+"-"+to.Format(DateParam))
	params.Set("limit", "500")

	body, err := c.get(ctx, "scoreboard", sportPath+"/scoreboard", params)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch %s scoreboard: %w", sportPath, err)
	}

	var sb models.ESPNScoreboard
	if err := json.Unmarshal(body, &sb); err != nil {
		return nil, body, fmt.Errorf("failed to unmarshal %s scoreboard: %w", sportPath, err)
	}

	return &sb, body, nil
}

// FetchSummary fetches the box score and key events of a single event
func (c *Client) FetchSummary(ctx context.Context, sportPath, eventID string) (*models.ESPNSummary, []byte, error) {
	params := url.Values{}
	params.Set("event", eventID)

	body, err := c.get(ctx, "summary", sportPath+"/summary", params)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch %s summary %s: %w", sportPath, eventID, err)
	}

	var summary models.ESPNSummary
	if err := json.Unmarshal(body, &summary); err != nil {
		return nil, body, fmt.Errorf("failed to unmarshal %s summary %s: %w", sportPath, eventID, err)
	}

	return &summary, body, nil
}
