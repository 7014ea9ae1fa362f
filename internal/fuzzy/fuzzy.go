// Package fuzzy implements the Key Normaliser & Fuzzy Matcher (spec
// §4.1): accent-folding, case-folding, and bounded-edit-distance token
// matching used for name-based workspace lookup. It is never used for
// equality comparisons inside filters.
package fuzzy

import (
	"strings"
	"unicode"
)

// accentFold maps common Latin diacritics (including ñ) to their plain
// ASCII base letter, in both cases.
var accentFold = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ä", "a",
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"í", "i", "ì", "i", "î", "i", "ï", "i",
	"ó", "o", "ò", "o", "ô", "o", "ö", "o",
	"ú", "u", "ù", "u", "û", "u", "ü", "u",
	"ñ", "n",
	"Á", "a", "À", "a", "Â", "a", "Ä", "a",
	"É", "e", "È", "e", "Ê", "e", "Ë", "e",
	"Í", "i", "Ì", "i", "Î", "i", "Ï", "i",
	"Ó", "o", "Ò", "o", "Ô", "o", "Ö", "o",
	"Ú", "u", "Ù", "u", "Û", "u", "Ü", "u",
	"Ñ", "n",
)

// fold lower-cases then accent-folds s.
func fold(s string) string {
	return accentFold.Replace(strings.ToLower(s))
}

// maxEditsForToken returns the bounded-edit-distance budget for a
// folded token by length: shorter than 8 runes uses maxEditsShort,
// 8 or more uses maxEditsLong (spec §4.1, config-tunable via
// internal/config's MaxFuzzyEditsShort/Long).
func maxEditsForToken(token string, maxEditsShort, maxEditsLong int) int {
	n := len([]rune(token))
	if n >= 8 {
		return maxEditsLong
	}
	return maxEditsShort
}

// Matches reports whether candidate matches query under the spec §4.1
// contract. An empty or absent query always matches. maxEditsShort and
// maxEditsLong bound the edit-distance budget for query tokens shorter
// than, and at least, 8 runes respectively.
func Matches(candidate, query string, maxEditsShort, maxEditsLong int) bool {
	if strings.TrimSpace(query) == "" {
		return true
	}

	foldedCandidate := fold(candidate)
	foldedQuery := fold(query)

	if strings.Contains(foldedCandidate, foldedQuery) {
		return true
	}

	queryTokens := strings.Fields(foldedQuery)
	candidateTokens := strings.Fields(foldedCandidate)
	if len(queryTokens) == 0 {
		return true
	}

	for _, qt := range queryTokens {
		if !anyTokenMatches(candidateTokens, qt, maxEditsShort, maxEditsLong) {
			return false
		}
	}
	return true
}

func anyTokenMatches(candidateTokens []string, queryToken string, maxEditsShort, maxEditsLong int) bool {
	budget := maxEditsForToken(queryToken, maxEditsShort, maxEditsLong)
	for _, ct := range candidateTokens {
		if strings.Contains(ct, queryToken) {
			return true
		}
		if boundedLevenshtein(ct, queryToken, budget) <= budget {
			return true
		}
	}
	return false
}

// boundedLevenshtein computes the Levenshtein edit distance between a
// and b. When their rune lengths differ by more than limit+4 it returns
// limit+1 without computing the table; otherwise it returns the full
// distance, which may exceed limit+1.
func boundedLevenshtein(a, b string, limit int) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)

	if abs(la-lb) > limit+4 {
		return limit + 1
	}

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// NormalizeKey folds and trims a string for use as a cache/comparison
// key. Unlike Matches, this does not do fuzzy token matching — it is
// used to build stable lookup keys from display names.
func NormalizeKey(s string) string {
	s = fold(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		if unicode.IsSpace(r) {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
