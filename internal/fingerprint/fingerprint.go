// Package fingerprint normalizes and hashes signal content and extracts the
// fuzzy-matchable fingerprint used by the deduplication gate.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	// combinedContentCap bounds the content portion of an article's
	// combined hash so unbounded input stays cheap to digest.
	combinedContentCap = 2000

	// maxKeyPhrases caps the fingerprint's ordered phrase set.
	maxKeyPhrases = 16
)

// Fingerprint is the fuzzy-matchable digest of one piece of content.
type Fingerprint struct {
	Hash       string
	KeyPhrases []string
	WordCount  int
}

// Hash returns the stable content digest of the normalized string.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(Normalize(content)))
	return hex.EncodeToString(sum[:])
}

// CombinedHash digests title plus capped content. It is distinct from the
// plain content hash and used for article-specific matching.
func CombinedHash(title, content string) string {
	capped := truncate(content, combinedContentCap)
	sum := sha256.Sum256([]byte(Normalize(title) + "\n" + Normalize(capped)))
	return hex.EncodeToString(sum[:])
}

// Extract builds the fingerprint of a titled piece of content: the content
// hash, the ranked key-phrase set, and the normalized word count.
func Extract(title, content string) Fingerprint {
	normalized := Normalize(title + " " + content)
	tokens := Tokenize(normalized)

	return Fingerprint{
		Hash:       Hash(content),
		KeyPhrases: KeyPhrases(tokens),
		WordCount:  len(tokens),
	}
}

type scoredPhrase struct {
	phrase   string
	score    float64
	position int
}

// KeyPhrases extracts overlapping word bigrams after stop-word removal,
// ranked by a simple importance heuristic (token length, earlier position
// wins). The result is an ordered set: no duplicates, best first.
func KeyPhrases(tokens []string) []string {
	content := make([]string, 0, len(tokens))
	positions := make([]int, 0, len(tokens))
	for i, tok := range tokens {
		if isStopWord(tok) {
			continue
		}
		content = append(content, tok)
		positions = append(positions, i)
	}
	if len(content) < 2 {
		return nil
	}

	seen := make(map[string]struct{}, len(content))
	scored := make([]scoredPhrase, 0, len(content)-1)
	for i := 0; i+1 < len(content); i++ {
		phrase := content[i] + " " + content[i+1]
		if _, dup := seen[phrase]; dup {
			continue
		}
		seen[phrase] = struct{}{}

		// Longer non-stopword tokens carry more information; earlier
		// phrases (headline, lede) outrank later ones.
		score := float64(len(content[i])+len(content[i+1])) - 0.1*float64(positions[i])
		scored = append(scored, scoredPhrase{phrase: phrase, score: score, position: positions[i]})
	}

	sort.SliceStable(scored, func(a, b int) bool {
		if scored[a].score != scored[b].score {
			return scored[a].score > scored[b].score
		}
		return scored[a].position < scored[b].position
	})

	limit := len(scored)
	if limit > maxKeyPhrases {
		limit = maxKeyPhrases
	}
	phrases := make([]string, limit)
	for i := 0; i < limit; i++ {
		phrases[i] = scored[i].phrase
	}
	return phrases
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(
		"a an and are as at be been but by for from had has have he her his " +
			"i if in into is it its of on or our she so than that the their " +
			"them then there these they this to was we were what when which " +
			"who will with you your not no after before over under up down " +
			"out about against between during more most other some such only " +
			"own same too very can just now said says say also") {
		stopWords[w] = struct{}{}
	}
}

func isStopWord(tok string) bool {
	_, ok := stopWords[tok]
	return ok
}
