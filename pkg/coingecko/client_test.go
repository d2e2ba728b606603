package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/paywave/market-proxy/internal/testutil"
	"github.com/paywave/market-proxy/pkg/ratelimit"
	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, mock *testutil.MockCoinGecko, limiter *ratelimit.Tracker) *Client {
	t.Helper()

	cfg := DefaultConfig("TestApp/1.0.0")
	cfg.BaseURL = mock.URL()
	client, err := New(cfg, limiter)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return client
}

func TestNew_Validation(t *testing.T) {
	valid := DefaultConfig("TestApp/1.0.0")

	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid config",
			mutate:      func(*Config) {},
			expectError: false,
		},
		{
			name:        "empty base url",
			mutate:      func(c *Config) { c.BaseURL = "" },
			expectError: true,
			errorMsg:    "base url is required",
		},
		{
			name:        "empty user agent",
			mutate:      func(c *Config) { c.UserAgent = "" },
			expectError: true,
			errorMsg:    "user-agent is required",
		},
		{
			name:        "empty currency",
			mutate:      func(c *Config) { c.VsCurrency = "" },
			expectError: true,
			errorMsg:    "vs_currency is required",
		},
		{
			name:        "page size too large",
			mutate:      func(c *Config) { c.PageSize = 500 },
			expectError: true,
			errorMsg:    "page_size must be between 1 and 250 (got 500)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)

			client, err := New(cfg, nil)
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got nil")
					return
				}
				if tt.errorMsg != "" && err.Error() != tt.errorMsg {
					t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}
			if client == nil {
				t.Error("Client is nil")
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("TestApp/1.0.0")

	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, DefaultBaseURL)
	}
	if cfg.VsCurrency != "usd" {
		t.Errorf("VsCurrency = %q, want usd", cfg.VsCurrency)
	}
	if cfg.PageSize != 250 {
		t.Errorf("PageSize = %d, want 250", cfg.PageSize)
	}
}

func TestFetchPage_Request(t *testing.T) {
	mock := testutil.NewMockCoinGecko()
	defer mock.Close()

	cfg := DefaultConfig("TestApp/1.0.0")
	cfg.BaseURL = mock.URL() + "/"
	cfg.APIKey = "demo-key"
	client, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	data, err := client.FetchPage(context.Background(), []string{"bitcoin", "ethereum"})
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}

	var rows []testutil.MarketRow
	if err := json.Unmarshal(data, &rows); err != nil {
		t.Fatalf("invalid JSON payload: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != "bitcoin" || rows[1].ID != "ethereum" {
		t.Errorf("unexpected rows: %+v", rows)
	}

	query := mock.GetLastQuery()
	want := map[string]string{
		"vs_currency": "usd",
		"ids":         "bitcoin,ethereum",
		"order":       "market_cap_desc",
		"per_page":    "250",
		"page":        "1",
		"sparkline":   "false",
	}
	for key, value := range want {
		if query[key] != value {
			t.Errorf("query[%s] = %q, want %q", key, query[key], value)
		}
	}

	headers := mock.GetLastRequestHeader()
	if got := headers.Get("User-Agent"); got != "TestApp/1.0.0" {
		t.Errorf("User-Agent = %q, want TestApp/1.0.0", got)
	}
	if got := headers.Get(DefaultAPIKeyHeader); got != "demo-key" {
		t.Errorf("%s = %q, want demo-key", DefaultAPIKeyHeader, got)
	}
}

func TestFetchPage_ErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		response      testutil.MockResponse
		expectedClass ErrorClass
		rateLimited   bool
	}{
		{
			name:          "rate limit",
			response:      testutil.NewRateLimitResponse(30),
			expectedClass: ErrorClassRateLimit,
			rateLimited:   true,
		},
		{
			name:          "server error",
			response:      testutil.NewServerErrorResponse(),
			expectedClass: ErrorClassServer,
		},
		{
			name: "client error",
			response: testutil.MockResponse{
				StatusCode: http.StatusNotFound,
				Body:       `{"error":"coin not found"}`,
			},
			expectedClass: ErrorClassClient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockCoinGecko()
			defer mock.Close()
			mock.Enqueue(tt.response)

			client := newTestClient(t, mock, nil)
			_, err := client.FetchPage(context.Background(), []string{"bitcoin"})

			var upstreamErr *UpstreamError
			if !errors.As(err, &upstreamErr) {
				t.Fatalf("Expected *UpstreamError, got %v", err)
			}
			if upstreamErr.ErrorClass != tt.expectedClass {
				t.Errorf("ErrorClass = %q, want %q", upstreamErr.ErrorClass, tt.expectedClass)
			}
			if upstreamErr.StatusCode != tt.response.StatusCode {
				t.Errorf("StatusCode = %d, want %d", upstreamErr.StatusCode, tt.response.StatusCode)
			}
			if upstreamErr.RateLimited() != tt.rateLimited {
				t.Errorf("RateLimited() = %v, want %v", upstreamErr.RateLimited(), tt.rateLimited)
			}
			if tt.rateLimited && upstreamErr.RetryAfter != 30*time.Second {
				t.Errorf("RetryAfter = %v, want 30s", upstreamErr.RetryAfter)
			}
		})
	}
}

func TestFetchPage_NoRetry(t *testing.T) {
	mock := testutil.NewMockCoinGecko()
	defer mock.Close()
	mock.Enqueue(testutil.NewServerErrorResponse())

	client := newTestClient(t, mock, nil)
	if _, err := client.FetchPage(context.Background(), []string{"bitcoin"}); err == nil {
		t.Fatal("Expected error for 500 response")
	}

	if count := mock.GetRequestCount(); count != 1 {
		t.Errorf("Request count = %d, want 1 (no retries)", count)
	}
}

func TestFetchPage_NetworkError(t *testing.T) {
	mock := testutil.NewMockCoinGecko()
	client := newTestClient(t, mock, nil)
	mock.Close()

	_, err := client.FetchPage(context.Background(), []string{"bitcoin"})

	var upstreamErr *UpstreamError
	if !errors.As(err, &upstreamErr) {
		t.Fatalf("Expected *UpstreamError, got %v", err)
	}
	if upstreamErr.ErrorClass != ErrorClassNetwork {
		t.Errorf("ErrorClass = %q, want %q", upstreamErr.ErrorClass, ErrorClassNetwork)
	}
}

func TestFetchPage_CooldownBlocksRequests(t *testing.T) {
	mock := testutil.NewMockCoinGecko()
	defer mock.Close()
	mock.Enqueue(testutil.NewRateLimitResponse(60))

	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	limiter := ratelimit.NewTracker(nil, logger)
	client := newTestClient(t, mock, limiter)
	ctx := context.Background()

	if _, err := client.FetchPage(ctx, []string{"bitcoin"}); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("Expected ErrRateLimited, got %v", err)
	}

	// During the cooldown the request must not reach upstream.
	_, err := client.FetchPage(ctx, []string{"bitcoin"})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("Expected ErrRateLimited during cooldown, got %v", err)
	}
	if count := mock.GetRequestCount(); count != 1 {
		t.Errorf("Request count = %d, want 1", count)
	}
}

func TestFetchMarkets_Pagination(t *testing.T) {
	mock := testutil.NewMockCoinGecko()
	defer mock.Close()

	cfg := DefaultConfig("TestApp/1.0.0")
	cfg.BaseURL = mock.URL()
	cfg.PageSize = 2
	client, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	data, err := client.FetchMarkets(context.Background(), []string{"bitcoin", "dai", "ethereum", "solana", "tether"})
	if err != nil {
		t.Fatalf("FetchMarkets failed: %v", err)
	}

	var rows []testutil.MarketRow
	if err := json.Unmarshal(data, &rows); err != nil {
		t.Fatalf("invalid JSON payload: %v", err)
	}
	if len(rows) != 5 {
		t.Errorf("rows = %d, want 5", len(rows))
	}
	if count := mock.GetRequestCount(); count != 3 {
		t.Errorf("Request count = %d, want 3 pages", count)
	}
}

func TestFetchMarkets_EmptyIDs(t *testing.T) {
	mock := testutil.NewMockCoinGecko()
	defer mock.Close()

	client := newTestClient(t, mock, nil)
	if _, err := client.FetchMarkets(context.Background(), nil); err == nil {
		t.Error("Expected error for empty ids")
	}
	if count := mock.GetRequestCount(); count != 0 {
		t.Errorf("Request count = %d, want 0", count)
	}
}

func TestMarketsURL(t *testing.T) {
	mock := testutil.NewMockCoinGecko()
	defer mock.Close()

	client := newTestClient(t, mock, nil)
	got := client.marketsURL([]string{"bitcoin"})

	if !strings.HasPrefix(got, mock.URL()+"/coins/markets?") {
		t.Errorf("marketsURL() = %q, want prefix %q", got, mock.URL()+"/coins/markets?")
	}
}
