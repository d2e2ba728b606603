package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/paywave/market-proxy/internal/config"
	"github.com/paywave/market-proxy/internal/server"
	"github.com/paywave/market-proxy/pkg/cache"
	"github.com/paywave/market-proxy/pkg/coingecko"
	"github.com/paywave/market-proxy/pkg/logging"
	"github.com/paywave/market-proxy/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 10 * time.Second

// app holds the wired components of the proxy.
type app struct {
	redis  *redis.Client // nil when running with the memory store
	store  cache.Store
	cache  *cache.Cache
	server *server.Server
}

func main() {
	showHelp := flag.Bool("help", false, "print supported environment variables")
	flag.Parse()
	if *showHelp {
		fmt.Println(config.Usage())
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(logging.Config{
		Level:   logging.LogLevel(cfg.Log.Level),
		Pretty:  cfg.Log.Pretty,
		Service: "market-proxy",
		Output:  os.Stderr,
	})
	logger := logging.NewLogger("main")

	a, err := build(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer a.close()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("store", storeName(a)).
			Dur("ttl", a.cache.TTL()).
			Str("user_agent", cfg.CoinGecko.UserAgent).
			Msg("Starting market proxy")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
	}
}

// build wires store, rate limit tracker, upstream client, cache and HTTP
// server from cfg.
func build(cfg config.Config) (*app, error) {
	a := &app{}

	if cfg.Redis.URL != "" {
		redisClient, err := newRedisClient(cfg.Redis)
		if err != nil {
			return nil, err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		log.Info().Str("redis", cfg.Redis.URL).Msg("Connected to Redis")

		a.redis = redisClient
		a.store = cache.NewRedisStore(redisClient, cfg.Cache.Retention)
	} else {
		a.store = cache.NewMemoryStore(cache.MemoryStoreConfig{
			Retention: cfg.Cache.Retention,
			Capacity:  cfg.Cache.Capacity,
		})
	}

	tracker := ratelimit.NewTracker(a.redis, logging.NewLogger("ratelimit"))

	upstream, err := coingecko.New(coingecko.Config{
		BaseURL:        cfg.CoinGecko.BaseURL,
		APIKey:         cfg.CoinGecko.APIKey,
		APIKeyHeader:   cfg.CoinGecko.APIKeyHeader,
		UserAgent:      cfg.CoinGecko.UserAgent,
		VsCurrency:     cfg.CoinGecko.VsCurrency,
		Order:          cfg.CoinGecko.Order,
		PageSize:       cfg.CoinGecko.PageSize,
		MaxConcurrency: cfg.CoinGecko.MaxConcurrency,
		Timeout:        cfg.CoinGecko.UpstreamTimeout,
	}, tracker)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create coingecko client: %w", err)
	}

	a.cache = cache.New(upstream, a.store, cache.Config{
		TTL:       cfg.Cache.TTL,
		Namespace: cfg.Cache.Namespace,
	})

	a.server = server.New(a.cache, server.Options{
		AllowedIDs:     cfg.Server.AllowedIDs,
		MaxIDs:         cfg.Server.MaxIDs,
		RequestTimeout: cfg.Server.RequestTimeout,
		Ready:          readyCheck(a.redis),
	})

	return a, nil
}

// newRedisClient accepts either a redis:// URL or a bare host:port.
// REDIS_PASSWORD and a non-zero REDIS_DB override the URL's values.
func newRedisClient(cfg config.Redis) (*redis.Client, error) {
	if strings.Contains(cfg.URL, "://") {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		if cfg.Password != "" {
			opts.Password = cfg.Password
		}
		if cfg.DB != 0 {
			opts.DB = cfg.DB
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.URL,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), nil
}

// readyCheck pings Redis; without Redis the proxy is always ready.
func readyCheck(redisClient *redis.Client) server.ReadyFunc {
	if redisClient == nil {
		return nil
	}
	return func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	}
}

func storeName(a *app) string {
	if a.redis != nil {
		return "redis"
	}
	return "memory"
}

func (a *app) close() {
	if ms, ok := a.store.(*cache.MemoryStore); ok {
		ms.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
}
