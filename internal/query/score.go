package query

import (
	"strings"
	"unicode"
)

const (
	phrasePoints    = 10
	wholeWordPoints = 2
	partialPoints   = 1

	// Below this length a query word earns no partial credit; two-letter
	// fragments match almost everything.
	minPartialLen = 3
	// A shared prefix of at least this many characters counts as a
	// partial match, so "walking" still matches "walks".
	minPrefixLen = 4
)

// Score computes the relevance of a caption against a free-text query.
// The full query appearing verbatim earns +10; each distinct query word
// earns +2 as a whole word or +1 as a partial match, never both. Matching
// is case-insensitive with per-token punctuation trimming. Returns the
// score and the matched terms in query order.
func Score(caption, query string) (int, []string) {
	capLower := strings.ToLower(caption)
	queryLower := strings.ToLower(strings.TrimSpace(query))
	if capLower == "" || queryLower == "" {
		return 0, nil
	}

	score := 0
	var matched []string

	if strings.Contains(capLower, queryLower) {
		score += phrasePoints
		matched = append(matched, queryLower)
	}

	captionTokens := tokenize(capLower)
	seen := make(map[string]bool)

	for _, word := range tokenize(queryLower) {
		if seen[word] {
			continue
		}
		seen[word] = true

		if containsToken(captionTokens, word) {
			score += wholeWordPoints
			matched = append(matched, word)
			continue
		}
		if partialMatch(captionTokens, word) {
			score += partialPoints
			matched = append(matched, word)
		}
	}

	return score, matched
}

func tokenize(s string) []string {
	fields := strings.Fields(s)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		token := strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

func containsToken(tokens []string, word string) bool {
	for _, t := range tokens {
		if t == word {
			return true
		}
	}
	return false
}

func partialMatch(tokens []string, word string) bool {
	if len(word) < minPartialLen {
		return false
	}
	for _, t := range tokens {
		if t == word {
			continue
		}
		if strings.Contains(t, word) {
			return true
		}
		if commonPrefixLen(t, word) >= minPrefixLen {
			return true
		}
	}
	return false
}

func commonPrefixLen(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}
