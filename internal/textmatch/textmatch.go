// Package textmatch provides text normalization and fuzzy similarity helpers
// shared by deduplication, relevance filtering and entity merging.
package textmatch

import (
	"strings"
	"unicode"

	"github.com/agext/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lower-cases s, folds diacritics, replaces punctuation with spaces
// and collapses whitespace.
func Normalize(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	space := true
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// Similarity returns the Levenshtein similarity (0..1) of the normalized
// forms of a and b. Two empty strings score 0.
func Similarity(a, b string) float64 {
	return similarity(Normalize(a), Normalize(b))
}

func similarity(na, nb string) float64 {
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	return levenshtein.Similarity(na, nb, nil)
}

// PartialRatio scores how well the shorter string matches the best aligned
// window of the longer one, after normalization.
func PartialRatio(needle, haystack string) float64 {
	return partialRatio(Normalize(needle), Normalize(haystack))
}

func partialRatio(short, long string) float64 {
	if short == "" || long == "" {
		return 0
	}
	if strings.Contains(long, short) {
		return 1
	}
	s, l := []rune(short), []rune(long)
	if len(s) > len(l) {
		s, l = l, s
	}
	best := 0.0
	for i := 0; i+len(s) <= len(l); i++ {
		if sim := similarity(string(s), string(l[i:i+len(s)])); sim > best {
			best = sim
			if best == 1 {
				break
			}
		}
	}
	return best
}

// ContainsPhrase reports whether phrase occurs in text on word boundaries,
// ignoring case, accents and punctuation.
func ContainsPhrase(text, phrase string) bool {
	np := Normalize(phrase)
	if np == "" {
		return false
	}
	return strings.Contains(" "+Normalize(text)+" ", " "+np+" ")
}

// Mentions reports whether text contains phrase exactly or fuzzily with a
// partial ratio at or above threshold.
func Mentions(text, phrase string, threshold float64) bool {
	nt, np := Normalize(text), Normalize(phrase)
	if np == "" || nt == "" {
		return false
	}
	if strings.Contains(" "+nt+" ", " "+np+" ") {
		return true
	}
	return partialRatio(np, nt) >= threshold
}

// AllTokens reports whether every token of phrase is fuzzily present in text.
func AllTokens(text, phrase string, threshold float64) bool {
	nt := Normalize(text)
	tokens := strings.Fields(Normalize(phrase))
	if len(tokens) == 0 || nt == "" {
		return false
	}
	for _, tok := range tokens {
		if partialRatio(tok, nt) < threshold {
			return false
		}
	}
	return true
}
