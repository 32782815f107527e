// Package textutil holds the word-set and phrase-matching primitives shared by
// the detectors, ranker, candidate pool and governance deduplication.
package textutil

import (
	"strings"
	"unicode"
)

// minWordLength filters out short tokens that carry no topical signal.
const minWordLength = 3

// stopWords are dropped from significant-word sets.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {}, "you": {},
	"all": {}, "any": {}, "can": {}, "had": {}, "her": {}, "was": {}, "one": {},
	"our": {}, "out": {}, "has": {}, "have": {}, "this": {}, "that": {}, "with": {},
	"from": {}, "they": {}, "will": {}, "would": {}, "there": {}, "their": {},
	"what": {}, "when": {}, "which": {}, "about": {}, "into": {}, "than": {},
	"them": {}, "then": {}, "these": {}, "some": {}, "just": {}, "like": {},
	"been": {}, "were": {}, "your": {}, "its": {}, "it's": {}, "also": {},
	"how": {}, "why": {}, "who": {}, "does": {}, "did": {}, "should": {},
	"could": {}, "please": {},
}

// Tokens lowercases text and splits it into letter/digit runs. Apostrophes
// inside a word are kept so contractions stay whole.
func Tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// WordCount returns the number of whitespace-separated words in text.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// WordSet is a set of significant words.
type WordSet map[string]struct{}

// Words returns the significant words of text: lowercased tokens of at
// least three characters that are not stop words.
func Words(text string) WordSet {
	set := make(WordSet)
	for _, tok := range Tokens(text) {
		tok = strings.Trim(tok, "'")
		if len(tok) < minWordLength {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		set[tok] = struct{}{}
	}
	return set
}

// Intersect returns the number of words present in both sets.
func (s WordSet) Intersect(other WordSet) int {
	small, large := s, other
	if len(small) > len(large) {
		small, large = large, small
	}
	n := 0
	for w := range small {
		if _, ok := large[w]; ok {
			n++
		}
	}
	return n
}

// Jaccard returns |a ∩ b| / |a ∪ b|. Two empty sets score 0.
func Jaccard(a, b WordSet) float64 {
	inter := a.Intersect(b)
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// OverlapMin returns |a ∩ b| / min(|a|, |b|). Either set empty scores 0.
func OverlapMin(a, b WordSet) float64 {
	denom := len(a)
	if len(b) < denom {
		denom = len(b)
	}
	if denom == 0 {
		return 0
	}
	return float64(a.Intersect(b)) / float64(denom)
}

// NGrams returns the space-joined n-token windows of tokens.
func NGrams(tokens []string, n int) []string {
	if n < 1 || len(tokens) < n {
		return nil
	}
	out := make([]string, 0, len(tokens)-n+1)
	for i := 0; i+n <= len(tokens); i++ {
		out = append(out, strings.Join(tokens[i:i+n], " "))
	}
	return out
}
