// Package pagination splits large identifier lists into CoinGecko pages
// and fetches them in parallel.
//
// CoinGecko's /coins/markets returns at most per_page (max 250) rows, so a
// request for more identifiers than that has to be split. The batch
// fetcher:
//   - Chunks the normalized identifiers into pages of PageSize
//   - Fetches a single page directly (the common case)
//   - Fans out multiple pages with bounded concurrency
//   - Merges the JSON arrays back in page order
//   - Fails the whole batch when any page fails (no partial payloads are cached)
//
// Example usage:
//
//	fetcher := pagination.NewBatchFetcher(geckoClient, pagination.DefaultConfig())
//	data, err := fetcher.FetchAll(ctx, ids)
package pagination
