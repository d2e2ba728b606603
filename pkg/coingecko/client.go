// Package coingecko provides the upstream HTTP client for the CoinGecko
// markets endpoint, with rate limit cooldowns and error classification.
package coingecko

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paywave/market-proxy/pkg/cache"
	"github.com/paywave/market-proxy/pkg/pagination"
	"github.com/paywave/market-proxy/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for CoinGecko client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coingecko_requests_total",
		Help: "Total CoinGecko requests by status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "coingecko_request_duration_seconds",
		Help:    "CoinGecko request duration in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coingecko_errors_total",
		Help: "Total CoinGecko errors by class",
	}, []string{"class"})
)

const (
	// DefaultBaseURL is the public CoinGecko API.
	DefaultBaseURL = "https://api.coingecko.com/api/v3"

	// DefaultAPIKeyHeader is the header used for demo API keys.
	// Pro keys use "x-cg-pro-api-key" against the pro base URL.
	DefaultAPIKeyHeader = "x-cg-demo-api-key"

	marketsPath = "/coins/markets"

	// maxErrorBody bounds how much of an error response is kept for logs.
	maxErrorBody = 512
)

// Client fetches market data from CoinGecko.
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.Tracker
	pages       *pagination.BatchFetcher
	config      Config
	logger      zerolog.Logger
}

var _ cache.Fetcher = (*Client)(nil)

// Config holds the client configuration.
type Config struct {
	// BaseURL of the API, without trailing slash
	BaseURL string

	// Optional API key, sent in APIKeyHeader
	APIKey       string
	APIKeyHeader string

	// User-Agent header sent upstream
	UserAgent string

	// Fixed query parameters of the markets request
	VsCurrency string
	Order      string

	// Pagination
	PageSize       int // Identifiers per request (max 250)
	MaxConcurrency int // Max parallel page requests

	// Per-request HTTP timeout
	Timeout time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		APIKeyHeader:   DefaultAPIKeyHeader,
		UserAgent:      userAgent,
		VsCurrency:     "usd",
		Order:          "market_cap_desc",
		PageSize:       pagination.MaxPageSize,
		MaxConcurrency: 4,
		Timeout:        10 * time.Second,
	}
}

// New creates a new CoinGecko client. rateLimiter may be nil to disable
// cooldown tracking.
func New(cfg Config, rateLimiter *ratelimit.Tracker) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.VsCurrency == "" {
		return nil, fmt.Errorf("vs_currency is required")
	}

	if cfg.PageSize <= 0 || cfg.PageSize > pagination.MaxPageSize {
		return nil, fmt.Errorf("page_size must be between 1 and %d (got %d)", pagination.MaxPageSize, cfg.PageSize)
	}

	if cfg.APIKey != "" && cfg.APIKeyHeader == "" {
		cfg.APIKeyHeader = DefaultAPIKeyHeader
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: rateLimiter,
		config:      cfg,
		logger:      log.With().Str("component", "coingecko-client").Logger(),
	}
	c.pages = pagination.NewBatchFetcher(c, pagination.Config{
		PageSize:       cfg.PageSize,
		MaxConcurrency: cfg.MaxConcurrency,
	})

	return c, nil
}

// FetchMarkets returns the markets rows for ids as one JSON array.
// Identifier lists longer than the page size are fetched page by page.
func (c *Client) FetchMarkets(ctx context.Context, ids []string) ([]byte, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("at least one id is required")
	}
	return c.pages.FetchAll(ctx, ids)
}

// FetchPage performs a single markets request for ids. No retries are
// made; a throttled or failed request returns an *UpstreamError.
func (c *Client) FetchPage(ctx context.Context, ids []string) ([]byte, error) {
	// Step 1: Honor an active cooldown without touching the network
	if c.rateLimiter != nil {
		allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Rate limit check failed")
		}
		if !allowed {
			requestsTotal.WithLabelValues("blocked").Inc()
			return nil, &UpstreamError{
				StatusCode: http.StatusTooManyRequests,
				ErrorClass: ErrorClassRateLimit,
				Message:    "cooldown active, request not sent",
				Err:        ErrRateLimited,
			}
		}
	}

	// Step 2: Build request
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.marketsURL(ids), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	if c.config.APIKey != "" {
		req.Header.Set(c.config.APIKeyHeader, c.config.APIKey)
	}

	c.logger.Debug().
		Int("ids", len(ids)).
		Msg("Executing CoinGecko request")

	// Step 3: Execute
	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.Observe(time.Since(startTime).Seconds())
	if err != nil {
		c.logger.Error().Err(err).Msg("HTTP request failed")
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues("network_error").Inc()
		return nil, &UpstreamError{
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	// Step 4: Handle HTTP errors
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.statusError(ctx, resp)
	}

	// Step 5: Read payload
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read response body",
			Err:        err,
		}
	}

	return body, nil
}

// statusError builds the error for a non-2xx response and records rate limits.
func (c *Client) statusError(ctx context.Context, resp *http.Response) error {
	errClass := classifyStatus(resp.StatusCode)
	if errClass == "" {
		errClass = ErrorClassServer
	}
	errorsTotal.WithLabelValues(string(errClass)).Inc()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	upstreamErr := &UpstreamError{
		StatusCode: resp.StatusCode,
		ErrorClass: errClass,
		Message:    resp.Status,
	}

	if errClass == ErrorClassRateLimit {
		upstreamErr.Err = ErrRateLimited
		if c.rateLimiter != nil {
			cooldown, err := c.rateLimiter.RecordRateLimited(ctx, resp.Header)
			if err != nil {
				c.logger.Warn().Err(err).Msg("Failed to record rate limit")
			}
			upstreamErr.RetryAfter = cooldown
		} else if d, ok := ratelimit.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
			upstreamErr.RetryAfter = d
		}
	}

	c.logger.Warn().
		Int("status", resp.StatusCode).
		Str("error_class", string(errClass)).
		Str("body", strings.TrimSpace(string(snippet))).
		Msg("CoinGecko request error")

	return upstreamErr
}

// marketsURL builds the /coins/markets URL for ids.
func (c *Client) marketsURL(ids []string) string {
	q := url.Values{}
	q.Set("vs_currency", c.config.VsCurrency)
	q.Set("ids", strings.Join(ids, ","))
	if c.config.Order != "" {
		q.Set("order", c.config.Order)
	}
	q.Set("per_page", strconv.Itoa(c.config.PageSize))
	q.Set("page", "1")
	q.Set("sparkline", "false")

	return c.config.BaseURL + marketsPath + "?" + q.Encode()
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
