// Package server exposes the market cache over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/paywave/market-proxy/pkg/cache"
	"github.com/paywave/market-proxy/pkg/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultRequestTimeout bounds one /api/markets request.
	DefaultRequestTimeout = 15 * time.Second

	// DefaultMaxIDs is the per-request identifier limit.
	DefaultMaxIDs = 50

	readyTimeout = 2 * time.Second

	// nginx convention for a client that went away before the response.
	statusClientClosedRequest = 499
)

// MarketSource returns the markets payload for a set of ids.
// *cache.Cache satisfies it.
type MarketSource interface {
	Get(ctx context.Context, ids []string) ([]byte, error)
}

// ReadyFunc reports whether a backend the server depends on is reachable.
type ReadyFunc func(ctx context.Context) error

// Options configures the HTTP surface.
type Options struct {
	AllowedIDs     []string
	MaxIDs         int
	RequestTimeout time.Duration

	// Ready is consulted by /ready; nil means always ready
	Ready ReadyFunc
}

// Server routes HTTP requests to a MarketSource.
type Server struct {
	source  MarketSource
	opts    Options
	allowed map[string]struct{}
	engine  *gin.Engine
	logger  zerolog.Logger
}

var _ MarketSource = (*cache.Cache)(nil)

// New builds the gin engine for source.
func New(source MarketSource, opts Options) *Server {
	if source == nil {
		panic("market source cannot be nil")
	}
	if opts.MaxIDs <= 0 {
		opts.MaxIDs = DefaultMaxIDs
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}

	allowed := make(map[string]struct{}, len(opts.AllowedIDs))
	for _, id := range ParseIDs(opts.AllowedIDs) {
		allowed[id] = struct{}{}
	}

	s := &Server{
		source:  source,
		opts:    opts,
		allowed: allowed,
		logger:  log.With().Str("component", "http-server").Logger(),
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestID(), accessLog(s.logger), instrument())

	engine.GET("/health", s.handleHealth)
	engine.GET("/ready", s.handleReady)
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))
	engine.GET("/api/markets", s.handleMarkets)

	s.engine = engine
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (s *Server) handleReady(c *gin.Context) {
	if s.opts.Ready == nil {
		c.String(http.StatusOK, "OK")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	if err := s.opts.Ready(ctx); err != nil {
		zerolog.Ctx(c.Request.Context()).Warn().Err(err).Msg("Readiness check failed")
		c.String(http.StatusServiceUnavailable, "NOT READY")
		return
	}
	c.String(http.StatusOK, "OK")
}

func (s *Server) handleMarkets(c *gin.Context) {
	logger := zerolog.Ctx(c.Request.Context())

	ids := ParseIDs(c.QueryArray("ids"))
	if err := validateIDs(ids, s.allowed, s.opts.MaxIDs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.RequestTimeout)
	defer cancel()

	data, err := s.source.Get(ctx, ids)
	if err != nil {
		status, message := errorResponse(err)
		logger.Error().Err(err).Int("status", status).Strs("ids", ids).Msg("Market data request failed")
		c.JSON(status, gin.H{"error": message})
		return
	}

	c.Data(http.StatusOK, "application/json", data)
}

// errorResponse maps a MarketSource error to an HTTP status and a client
// safe message.
func errorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, cache.ErrNoFallbackAvailable):
		return http.StatusBadGateway, "Failed to fetch market data"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Timed out fetching market data"
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, "Request canceled"
	default:
		return http.StatusBadGateway, "Failed to fetch market data"
	}
}
