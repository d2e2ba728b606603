// Package config loads the market proxy configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Server holds the HTTP surface settings.
type Server struct {
	Port           string        `env:"PORT" env-default:"8080" env-description:"HTTP listen port"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" env-default:"15s" env-description:"Deadline for one /api/markets request"`
	AllowedIDs     []string      `env:"ALLOWED_IDS" env-separator:"," env-default:"bitcoin,ethereum,tether,usd-coin,binancecoin,solana,matic-network,dai" env-description:"CoinGecko ids clients may request"`
	MaxIDs         int           `env:"MAX_IDS" env-default:"50" env-description:"Maximum ids per request"`
}

// Log holds logger settings.
type Log struct {
	Level  string `env:"LOG_LEVEL" env-default:"info" env-description:"debug, info, warn or error"`
	Pretty bool   `env:"LOG_PRETTY" env-default:"false" env-description:"Human-readable console logs"`
}

// Redis holds the optional shared store settings.
type Redis struct {
	URL      string `env:"REDIS_URL" env-description:"Redis address (host:port or redis:// URL); empty keeps the cache in memory"`
	Password string `env:"REDIS_PASSWORD" env-description:"Redis password; overrides the one in a redis:// URL when set"`
	DB       int    `env:"REDIS_DB" env-default:"0" env-description:"Redis database; overrides the one in a redis:// URL when non-zero"`
}

// Cache holds response cache settings.
type Cache struct {
	TTL       time.Duration `env:"CACHE_TTL" env-default:"5m" env-description:"How long a payload is served without refreshing"`
	Retention time.Duration `env:"CACHE_RETENTION" env-default:"0s" env-description:"How long payloads are kept for stale fallback (0 = forever)"`
	Capacity  uint64        `env:"CACHE_CAPACITY" env-default:"0" env-description:"Maximum in-memory entries (0 = unbounded)"`
	Namespace string        `env:"CACHE_NAMESPACE" env-default:"coingecko:markets" env-description:"Cache key prefix"`
}

// CoinGecko holds upstream client settings.
type CoinGecko struct {
	BaseURL         string        `env:"COINGECKO_BASE_URL" env-default:"https://api.coingecko.com/api/v3" env-description:"CoinGecko API base URL"`
	APIKey          string        `env:"COINGECKO_API_KEY" env-description:"CoinGecko API key"`
	APIKeyHeader    string        `env:"COINGECKO_API_KEY_HEADER" env-default:"x-cg-demo-api-key" env-description:"Header carrying the API key"`
	UserAgent       string        `env:"USER_AGENT" env-default:"market-proxy/0.1.0" env-description:"User-Agent sent upstream"`
	VsCurrency      string        `env:"VS_CURRENCY" env-default:"usd" env-description:"Quote currency"`
	Order           string        `env:"MARKETS_ORDER" env-default:"market_cap_desc" env-description:"Markets ordering"`
	PageSize        int           `env:"PAGE_SIZE" env-default:"250" env-description:"Ids per upstream request (max 250)"`
	MaxConcurrency  int           `env:"MAX_CONCURRENCY" env-default:"4" env-description:"Parallel upstream page requests"`
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" env-default:"10s" env-description:"Per-request upstream HTTP timeout"`
}

// Config is the full service configuration.
type Config struct {
	Server    Server
	Log       Log
	Redis     Redis
	Cache     Cache
	CoinGecko CoinGecko
}

// Load reads the configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}

	cfg.Server.AllowedIDs = normalizeIDs(cfg.Server.AllowedIDs)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Usage returns the description of every supported environment variable.
func Usage() string {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return err.Error()
	}
	return text
}

// Validate checks the configuration for values the service cannot run with.
func (c Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if len(c.Server.AllowedIDs) == 0 {
		return fmt.Errorf("ALLOWED_IDS must list at least one id")
	}
	if c.Server.MaxIDs <= 0 {
		return fmt.Errorf("MAX_IDS must be positive (got %d)", c.Server.MaxIDs)
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive (got %s)", c.Server.RequestTimeout)
	}
	if c.CoinGecko.UpstreamTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive (got %s)", c.CoinGecko.UpstreamTimeout)
	}
	// A hung upstream must fail inside the request deadline so the stale
	// fallback can still answer.
	if c.Server.RequestTimeout <= c.CoinGecko.UpstreamTimeout {
		return fmt.Errorf("REQUEST_TIMEOUT (%s) must be greater than UPSTREAM_TIMEOUT (%s)", c.Server.RequestTimeout, c.CoinGecko.UpstreamTimeout)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive (got %s)", c.Cache.TTL)
	}
	if c.Cache.Retention < 0 {
		return fmt.Errorf("CACHE_RETENTION must not be negative (got %s)", c.Cache.Retention)
	}
	if c.Cache.Retention > 0 && c.Cache.Retention < c.Cache.TTL {
		return fmt.Errorf("CACHE_RETENTION (%s) must be 0 or at least CACHE_TTL (%s)", c.Cache.Retention, c.Cache.TTL)
	}
	if c.CoinGecko.PageSize <= 0 || c.CoinGecko.PageSize > 250 {
		return fmt.Errorf("PAGE_SIZE must be between 1 and 250 (got %d)", c.CoinGecko.PageSize)
	}
	return nil
}

func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
