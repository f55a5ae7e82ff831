// Package patch implements a single-occurrence
// find/replace primitive used by every `*_patch` tool. It guarantees
// that a successful patch always has an unambiguous target — zero or
// multiple matches both fail without touching content.
package patch

import (
	"fmt"
	"strings"
)

// Apply replaces the single occurrence of old in content with new. It
// fails if old occurs zero times or more than once, leaving the
// caller's content untouched either way.
func Apply(content, old, new string) (string, error) {
	n := strings.Count(content, old)
	if n == 0 {
		return "", fmt.Errorf("old_string not found")
	}
	if n > 1 {
		return "", fmt.Errorf("%d matches for old_string, expected 1", n)
	}
	idx := strings.Index(content, old)
	return content[:idx] + new + content[idx+len(old):], nil
}
