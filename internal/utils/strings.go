// Package utils holds small parsing helpers shared by configuration and the CLI.
package utils

import "strings"

// ParseList splits a comma-separated string and returns trimmed non-empty values.
// Returns nil for empty/whitespace-only input.
func ParseList(s string) []string {
	if s == "" {
		return nil
	}

	var result []string
	for _, v := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return nil
	}

	return result
}

// ParseAssignments parses "key=value" items from a comma-separated list.
// A bare item has no "=" and is returned with ok false so the caller can
// derive a key for it.
func ParseAssignments(s string) []Assignment {
	items := ParseList(s)
	out := make([]Assignment, 0, len(items))
	for _, item := range items {
		key, value, ok := strings.Cut(item, "=")
		out = append(out, Assignment{
			Key:   strings.TrimSpace(key),
			Value: strings.TrimSpace(value),
			Raw:   item,
			HasEq: ok,
		})
	}
	return out
}

// Assignment is one parsed "key=value" item.
type Assignment struct {
	Key   string
	Value string
	Raw   string
	HasEq bool
}
