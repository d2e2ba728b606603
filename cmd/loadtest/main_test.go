package main

import (
	"net/url"
	"sort"
	"strings"
	"testing"

	vegeta "github.com/tsenart/vegeta/v12/lib"
)

func TestShuffledIDs(t *testing.T) {
	pool := []string{"bitcoin", "ethereum", "solana"}

	ids := shuffledIDs(pool)

	if len(ids) != len(pool)+1 {
		t.Fatalf("len = %d, want %d", len(ids), len(pool)+1)
	}
	seen := map[string]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if len(seen) != len(pool) {
		t.Errorf("distinct ids = %d, want %d", len(seen), len(pool))
	}
	if strings.Join(pool, ",") != "bitcoin,ethereum,solana" {
		t.Error("pool was mutated")
	}
}

func TestTargeter(t *testing.T) {
	targeter := newTargeter("http://proxy/api/markets", []string{"dai", "bitcoin"})

	var tgt vegeta.Target
	if err := targeter(&tgt); err != nil {
		t.Fatalf("targeter failed: %v", err)
	}

	if tgt.Method != "GET" {
		t.Errorf("Method = %s, want GET", tgt.Method)
	}
	if tgt.Header.Get("X-Request-ID") == "" {
		t.Error("Expected X-Request-ID header")
	}

	u, err := url.Parse(tgt.URL)
	if err != nil {
		t.Fatalf("invalid URL: %v", err)
	}
	ids := strings.Split(u.Query().Get("ids"), ",")
	sort.Strings(ids)
	if ids[0] != "bitcoin" || ids[len(ids)-1] != "dai" {
		t.Errorf("ids = %v", ids)
	}
}
