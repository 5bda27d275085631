// Package strings has small list-hygiene helpers for values parsed out of
// config.
package strings

import "strings"

// DedupeAndTrim trims each element and drops empties and duplicates,
// keeping first-seen order. Used for endpoint and broker lists where a
// repeated entry would double-count one backend.
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
