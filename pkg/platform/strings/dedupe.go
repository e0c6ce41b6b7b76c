// Package strings provides string manipulation utilities.
package strings

import (
	"sort"
	"strings"
)

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}

// DedupeSorted removes duplicates and empty strings and returns the result in
// sorted order. Used for changed-field sets so ledger rows compare stably.
func DedupeSorted(values []string) []string {
	result := DedupeAndTrim(values)
	sort.Strings(result)
	return result
}
