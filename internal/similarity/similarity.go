// Package similarity compares short labels such as column headers and status
// values, tolerating case, accents and small spelling differences.
package similarity

import (
	"strings"
	"unicode"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultThreshold is the ratio a match must reach when none is configured.
const DefaultThreshold = 0.85

// Normalize trims, lowercases, decomposes and strips combining marks, in that order.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	// A transformer keeps state, so build one per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Ratio returns the matching-blocks similarity of two strings in [0,1]
// after normalization. Two empty strings are identical.
func Ratio(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		return 1.0
	}
	// The sequence matcher is order sensitive; fix the order so Ratio(a,b) == Ratio(b,a).
	if na > nb {
		na, nb = nb, na
	}
	m := difflib.NewMatcher(splitRunes(na), splitRunes(nb))
	return m.Ratio()
}

// FuzzyMatch reports whether any alternative reaches threshold against text.
// A non-positive threshold selects DefaultThreshold.
func FuzzyMatch(text string, alternatives []string, threshold float64) bool {
	_, ok := BestMatch(text, alternatives, threshold)
	return ok
}

// BestMatch returns the first alternative whose ratio reaches threshold.
func BestMatch(text string, alternatives []string, threshold float64) (string, bool) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	for _, alt := range alternatives {
		if Ratio(text, alt) >= threshold {
			return alt, true
		}
	}
	return "", false
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
