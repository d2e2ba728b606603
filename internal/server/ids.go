package server

import (
	"fmt"
	"strings"
)

// ValidationError reports a client request the proxy refuses to forward.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ParseIDs collects identifiers from repeated or comma separated query
// values. Whitespace is trimmed and empty items are dropped; order and
// duplicates are kept for the cache to normalize.
func ParseIDs(values []string) []string {
	var ids []string
	for _, value := range values {
		for _, id := range strings.Split(value, ",") {
			if id = strings.ToLower(strings.TrimSpace(id)); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// validateIDs checks ids against the allow-list and the per-request limit.
func validateIDs(ids []string, allowed map[string]struct{}, maxIDs int) error {
	if len(ids) == 0 {
		return &ValidationError{Field: "ids", Message: "at least one id is required"}
	}

	unique := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := allowed[id]; !ok {
			return &ValidationError{Field: "ids", Message: fmt.Sprintf("unsupported id %q", id)}
		}
		unique[id] = struct{}{}
	}

	if maxIDs > 0 && len(unique) > maxIDs {
		return &ValidationError{Field: "ids", Message: fmt.Sprintf("at most %d ids per request (got %d)", maxIDs, len(unique))}
	}
	return nil
}
