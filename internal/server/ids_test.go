package server

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseIDs(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   []string
	}{
		{"nil", nil, nil},
		{"single", []string{"bitcoin"}, []string{"bitcoin"}},
		{"comma separated", []string{"bitcoin,ethereum"}, []string{"bitcoin", "ethereum"}},
		{"repeated params", []string{"bitcoin", "ethereum"}, []string{"bitcoin", "ethereum"}},
		{"whitespace and empties", []string{" bitcoin , ,ethereum,"}, []string{"bitcoin", "ethereum"}},
		{"lowercased", []string{"BitCoin"}, []string{"bitcoin"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseIDs(tt.values))
		})
	}
}

func TestValidateIDs(t *testing.T) {
	allowed := map[string]struct{}{"bitcoin": {}, "ethereum": {}}

	assert.NoError(t, validateIDs([]string{"bitcoin", "ethereum"}, allowed, 2))

	err := validateIDs([]string{"solana"}, allowed, 2)
	var vErr *ValidationError
	assert.True(t, errors.As(err, &vErr))
	assert.Equal(t, "ids", vErr.Field)
}
