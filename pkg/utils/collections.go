// Package utils provides small helpers shared across the Aegis service.
package utils

import "strings"

// RemoveDuplicates removes duplicate and empty strings, keeping first-seen order.
func RemoveDuplicates(slice []string) []string {
	seen := make(map[string]struct{}, len(slice))
	result := make([]string, 0, len(slice))

	for _, item := range slice {
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		result = append(result, item)
	}

	return result
}

// ContainsString reports whether slice contains s.
func ContainsString(slice []string, s string) bool {
	for _, item := range slice {
		if item == s {
			return true
		}
	}
	return false
}

// ContainsFold reports whether slice contains s, ignoring case.
func ContainsFold(slice []string, s string) bool {
	for _, item := range slice {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}

// Truncate cuts s to at most maxLen bytes.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// AppendBounded appends v to list and evicts the oldest entries so len never exceeds max.
// When dedupe is set, an existing equal entry is moved to the newest position instead.
func AppendBounded(list []string, v string, max int, dedupe bool) []string {
	if v == "" || max <= 0 {
		return list
	}
	out := make([]string, 0, len(list)+1)
	for _, item := range list {
		if dedupe && item == v {
			continue
		}
		out = append(out, item)
	}
	out = append(out, v)
	if len(out) > max {
		out = out[len(out)-max:]
	}
	return out
}
