package fingerprint

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// urlPlaceholder replaces every URL-shaped substring so that the same story
// syndicated under different links hashes identically.
const urlPlaceholder = "{url}"

var (
	stripPolicy  = bluemonday.StrictPolicy()
	urlPattern   = regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// Normalize applies the canonical normalization pipeline, in order: strip
// HTML tags, replace URLs with a fixed placeholder, collapse whitespace,
// lower-case. It is pure and idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	s = stripPolicy.Sanitize(s)
	s = html.UnescapeString(s)
	s = urlPattern.ReplaceAllString(s, urlPlaceholder)
	s = spacePattern.ReplaceAllString(s, " ")
	s = strings.ToLower(s)
	return strings.TrimSpace(s)
}

// Tokenize splits normalized text into word tokens, dropping punctuation-only
// fragments. Input is expected to already be normalized.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !isWordRune(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func isWordRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '\'' || r == '-' || r == '$' || r == '%':
		// keep tickers, percentages and contractions intact
		return true
	}
	return r >= utf8.RuneSelf // non-ASCII letters pass through
}

// TokenSet returns the unique token set of normalized text.
func TokenSet(s string) map[string]struct{} {
	tokens := Tokenize(s)
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		set[tok] = struct{}{}
	}
	return set
}

// Jaccard computes |A ∩ B| / |A ∪ B| over two token sets. Two empty sets
// are not similar (returns 0).
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// OverlapRatio computes |A ∩ B| / min(|A|, |B|) over two phrase lists.
func OverlapRatio(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, p := range a {
		set[p] = struct{}{}
	}
	intersection := 0
	seen := make(map[string]struct{}, len(b))
	for _, p := range b {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		if _, ok := set[p]; ok {
			intersection++
		}
	}
	smaller := len(set)
	if len(seen) < smaller {
		smaller = len(seen)
	}
	return float64(intersection) / float64(smaller)
}
