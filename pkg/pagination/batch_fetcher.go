package pagination

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// MaxPageSize is the largest per_page value CoinGecko accepts.
const MaxPageSize = 250

// Config holds batch fetcher configuration
type Config struct {
	// PageSize is the number of identifiers per upstream request
	PageSize int
	// MaxConcurrency is the maximum number of parallel page requests
	MaxConcurrency int
}

// DefaultConfig returns safe default configuration for CoinGecko
func DefaultConfig() Config {
	return Config{
		PageSize:       MaxPageSize,
		MaxConcurrency: 4,
	}
}

// PageFetcher fetches the market rows for one page of identifiers
type PageFetcher interface {
	FetchPage(ctx context.Context, ids []string) ([]byte, error)
}

// BatchFetcher handles parallel fetching of multiple pages
type BatchFetcher struct {
	fetcher PageFetcher
	config  Config
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher(fetcher PageFetcher, config Config) *BatchFetcher {
	if config.PageSize <= 0 || config.PageSize > MaxPageSize {
		config.PageSize = MaxPageSize
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}

	return &BatchFetcher{
		fetcher: fetcher,
		config:  config,
	}
}

// Chunk splits ids into pages of at most size identifiers.
func Chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = MaxPageSize
	}
	pages := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		pages = append(pages, ids[start:end])
	}
	return pages
}

// FetchAll fetches every page of ids and returns one merged JSON array.
func (bf *BatchFetcher) FetchAll(ctx context.Context, ids []string) ([]byte, error) {
	pages := Chunk(ids, bf.config.PageSize)

	// Single page optimization
	if len(pages) <= 1 {
		return bf.fetcher.FetchPage(ctx, ids)
	}

	start := time.Now()
	log.Debug().
		Int("ids", len(ids)).
		Int("pages", len(pages)).
		Msg("Starting parallel page fetch")

	results := make([][]byte, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bf.config.MaxConcurrency)

	for i, page := range pages {
		g.Go(func() error {
			data, err := bf.fetcher.FetchPage(gctx, page)
			if err != nil {
				return fmt.Errorf("page %d: %w", i+1, err)
			}
			results[i] = data
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged, err := MergeArrays(results)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Int("pages", len(pages)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return merged, nil
}

// MergeArrays concatenates JSON arrays, preserving order.
func MergeArrays(pages [][]byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')

	first := true
	for i, page := range pages {
		var rows []json.RawMessage
		if err := json.Unmarshal(page, &rows); err != nil {
			return nil, fmt.Errorf("decode page %d: %w", i+1, err)
		}
		for _, row := range rows {
			if !first {
				buf.WriteByte(',')
			}
			buf.Write(row)
			first = false
		}
	}

	buf.WriteByte(']')
	return buf.Bytes(), nil
}
