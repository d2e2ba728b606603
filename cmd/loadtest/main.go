// Command loadtest hammers a running market proxy with the same id sets
// in random order and duplication, to observe request deduplication via
// the market_cache_* metrics.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	vegeta "github.com/tsenart/vegeta/v12/lib"
)

func main() {
	target := flag.String("target", "http://localhost:8080/api/markets", "markets endpoint of the proxy")
	ids := flag.String("ids", "bitcoin,ethereum,tether,solana", "id pool to draw requests from")
	freq := flag.Int("rate", 50, "requests per second")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	flag.Parse()

	gofakeit.Seed(time.Now().UnixNano())

	pool := strings.Split(*ids, ",")
	rate := vegeta.Rate{Freq: *freq, Per: time.Second}
	attacker := vegeta.NewAttacker()

	var metrics vegeta.Metrics
	for res := range attacker.Attack(newTargeter(*target, pool), rate, *duration, "market-proxy") {
		metrics.Add(res)
	}
	metrics.Close()

	fmt.Printf("99th percentile: %s\n", metrics.Latencies.P99)
	fmt.Printf("95th percentile: %s\n", metrics.Latencies.P95)
	fmt.Printf("Mean: %s\n", metrics.Latencies.Mean)
	fmt.Printf("Max: %s\n", metrics.Latencies.Max)
	fmt.Printf("Requests per second: %.2f\n", metrics.Rate)
	fmt.Printf("Success ratio: %.2f%%\n", metrics.Success*100)
	fmt.Printf("Status codes: %v\n", metrics.StatusCodes)
	fmt.Printf("Total requests: %d\n", metrics.Requests)

	fmt.Println("\n=== Report ===")
	reporter := vegeta.NewTextReporter(&metrics)
	if err := reporter.Report(os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "report: %v\n", err)
	}
}

// newTargeter requests the whole pool every time, shuffled and with one
// id repeated, so every request maps to the same cache key.
func newTargeter(endpoint string, pool []string) vegeta.Targeter {
	return func(tgt *vegeta.Target) error {
		tgt.Method = http.MethodGet
		tgt.URL = endpoint + "?" + url.Values{"ids": {strings.Join(shuffledIDs(pool), ",")}}.Encode()
		tgt.Header = http.Header{
			"Accept":       {"application/json"},
			"X-Request-ID": {uuid.New().String()},
		}
		return nil
	}
}

func shuffledIDs(pool []string) []string {
	ids := make([]string, len(pool), len(pool)+1)
	copy(ids, pool)
	gofakeit.ShuffleStrings(ids)
	return append(ids, ids[gofakeit.Number(0, len(ids)-1)])
}
