// Package normalizer canonicalizes free-text questions so that inputs differing
// only in case, accents or whitespace share one cache key and match the same
// keyword terms.
package normalizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lowercases text, strips combining marks after NFD decomposition,
// and collapses whitespace runs into single spaces. It is idempotent.
//
// Lowercasing happens first: some uppercase letters (such as U+0130) lower to a
// base letter plus a combining mark, which must then be stripped in the same pass.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	lowered := strings.ToLower(text)

	// transform.Chain is stateful, so each call gets its own chain
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, lowered)
	if err != nil {
		stripped = lowered
	}

	return strings.Join(strings.Fields(stripped), " ")
}

// ContainsAny reports whether normalized text contains any of the normalized terms
func ContainsAny(text string, terms []string) bool {
	for _, term := range terms {
		if term != "" && strings.Contains(text, term) {
			return true
		}
	}
	return false
}
