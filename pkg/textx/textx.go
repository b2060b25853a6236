// Package textx provides small text utilities used across the project.
package textx

import (
	"regexp"
	"strings"
)

var (
	ctrlRun  = regexp.MustCompile("[\r\n\t]+")
	spaceRun = regexp.MustCompile(" {2,}")
)

// SanitizePayload collapses embedded CR/LF/TAB runs in a payload fragment so
// the text can be embedded in a JSON string without breaking the encoding.
// Blank input (empty after trimming) is returned verbatim, including
// whitespace-only strings. Any other control characters pass through
// untouched; the function is idempotent and never fails.
func SanitizePayload(s string) string {
	if strings.TrimSpace(s) == "" {
		return s
	}
	// fast path: nothing to collapse
	if !strings.ContainsAny(s, "\r\n\t") && !strings.Contains(s, "  ") {
		return s
	}
	s = ctrlRun.ReplaceAllString(s, " ")
	return spaceRun.ReplaceAllString(s, " ")
}

// SanitizeBatch applies SanitizePayload to every item of a batch, preserving
// order and cardinality. A nil item stays nil at the same position. The
// output slice always has the same length as the input.
func SanitizeBatch(items []*string) []*string {
	out := make([]*string, len(items))
	for i, it := range items {
		if it == nil {
			continue
		}
		v := SanitizePayload(*it)
		out[i] = &v
	}
	return out
}
