// Package answer decides whether a free-text math answer matches an expected
// solution. Matching is heuristic string comparison, not symbolic algebra:
// "10/2" does not match "5".
package answer

import (
	"strings"
	"unicode"
)

var symbolReplacer = strings.NewReplacer(
	",", ".",
	"×", "*",
	"–", "-",
	"—", "-",
)

// Normalize canonicalizes an answer for comparison: lower case, no whitespace
// (including non-breaking spaces), decimal commas turned into periods and
// typographic multiplication signs and dashes mapped to ASCII.
//
// Normalize is idempotent.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return symbolReplacer.Replace(b.String())
}
