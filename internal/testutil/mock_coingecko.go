// Package testutil provides testing utilities for the market proxy.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock CoinGecko response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockCoinGecko is a configurable mock of the CoinGecko markets API.
type MockCoinGecko struct {
	server *httptest.Server
	mu     sync.RWMutex

	// queued responses are served in order before falling back to the default handler
	queue   []MockResponse
	handler func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount      int
	LastQuery         map[string]string
	LastRequestHeader http.Header
}

// NewMockCoinGecko creates a new mock CoinGecko server.
func NewMockCoinGecko() *MockCoinGecko {
	mock := &MockCoinGecko{}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.LastQuery = map[string]string{}
		for key := range r.URL.Query() {
			mock.LastQuery[key] = r.URL.Query().Get(key)
		}

		var next *MockResponse
		if len(mock.queue) > 0 {
			next = &mock.queue[0]
			mock.queue = mock.queue[1:]
		}
		handler := mock.handler
		mock.mu.Unlock()

		switch {
		case next != nil:
			writeResponse(w, *next)
		case handler != nil:
			handler(w, r)
		default:
			defaultHandler(w, r)
		}
	}))

	return mock
}

// URL returns the mock server URL, usable as the client base URL.
func (m *MockCoinGecko) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCoinGecko) Close() {
	m.server.Close()
}

// Reset clears tracking counters and queued responses.
func (m *MockCoinGecko) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastQuery = nil
	m.LastRequestHeader = nil
	m.queue = nil
}

// SetHandler replaces the default handler.
func (m *MockCoinGecko) SetHandler(handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// Enqueue queues responses served to the next requests, in order.
func (m *MockCoinGecko) Enqueue(responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, responses...)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockCoinGecko) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetLastQuery returns the last request's query parameters.
func (m *MockCoinGecko) GetLastQuery() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastQuery
}

// GetLastRequestHeader returns the last request's headers.
func (m *MockCoinGecko) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// defaultHandler answers /coins/markets with one row per requested id.
func defaultHandler(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/coins/markets") {
		http.NotFound(w, r)
		return
	}

	ids := strings.Split(r.URL.Query().Get("ids"), ",")
	sort.Strings(ids)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(MarketsBody(ids...)))
}

// MarketRow is the subset of a CoinGecko markets row used in tests.
type MarketRow struct {
	ID           string  `json:"id"`
	Symbol       string  `json:"symbol"`
	Name         string  `json:"name"`
	CurrentPrice float64 `json:"current_price"`
}

// MarketsBody renders a markets response for ids.
func MarketsBody(ids ...string) string {
	rows := make([]MarketRow, 0, len(ids))
	for i, id := range ids {
		if id == "" {
			continue
		}
		rows = append(rows, MarketRow{
			ID:           id,
			Symbol:       strings.ToLower(id[:1]),
			Name:         strings.ToUpper(id[:1]) + id[1:],
			CurrentPrice: float64(1000 * (i + 1)),
		})
	}
	b, _ := json.Marshal(rows)
	return string(b)
}

// NewHealthyResponse creates a standard 200 OK response.
func NewHealthyResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfterSeconds int) MockResponse {
	headers := map[string]string{
		"Content-Type": "application/json; charset=utf-8",
	}
	if retryAfterSeconds >= 0 {
		headers["Retry-After"] = fmt.Sprintf("%d", retryAfterSeconds)
	}
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"status":{"error_code":429,"error_message":"You've exceeded the Rate Limit."}}`,
		Headers:    headers,
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}
