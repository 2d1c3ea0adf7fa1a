// Package strings holds the column-name helpers shared by queries and loaders.
package strings

import (
	"strings"
)

// DedupeAndTrim trims every name and drops blanks and repeats, keeping the
// first occurrence. Query projections go through it so a column is never
// selected twice.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// FoldIndex maps each trimmed, lower-cased header to its first position.
// Blank headers are skipped.
func FoldIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		key := strings.ToLower(strings.TrimSpace(h))
		if key == "" {
			continue
		}
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}
