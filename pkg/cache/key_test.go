package cache

import (
	"testing"
)

func TestCacheKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  CacheKey
		want string
	}{
		{
			name: "single id",
			key:  NewKey(DefaultNamespace, []string{"bitcoin"}),
			want: "coingecko:markets:bitcoin",
		},
		{
			name: "ids are sorted",
			key:  NewKey(DefaultNamespace, []string{"ethereum", "bitcoin"}),
			want: "coingecko:markets:bitcoin,ethereum",
		},
		{
			name: "duplicates removed",
			key:  NewKey(DefaultNamespace, []string{"tether", "bitcoin", "tether"}),
			want: "coingecko:markets:bitcoin,tether",
		},
		{
			name: "whitespace and empty ids dropped",
			key:  NewKey(DefaultNamespace, []string{" solana ", "", "dai"}),
			want: "coingecko:markets:dai,solana",
		},
		{
			name: "no namespace",
			key:  NewKey("", []string{"usd-coin", "dai"}),
			want: "dai,usd-coin",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("CacheKey.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestCacheKey_OrderIndependence ensures permutations produce the same key
func TestCacheKey_OrderIndependence(t *testing.T) {
	permutations := [][]string{
		{"bitcoin", "ethereum", "solana"},
		{"solana", "bitcoin", "ethereum"},
		{"ethereum", "solana", "bitcoin"},
		{"ethereum", "solana", "bitcoin", "bitcoin"},
	}

	first := NewKey(DefaultNamespace, permutations[0]).String()
	for i, ids := range permutations {
		if got := NewKey(DefaultNamespace, ids).String(); got != first {
			t.Errorf("permutation %d = %v, want %v", i, got, first)
		}
	}
}

func TestCacheKey_NormalizedDoesNotMutateInput(t *testing.T) {
	ids := []string{"ethereum", "bitcoin"}
	NewKey(DefaultNamespace, ids).Normalized()

	if ids[0] != "ethereum" || ids[1] != "bitcoin" {
		t.Errorf("input slice was modified: %v", ids)
	}
}
