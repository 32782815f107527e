package textutil

import "strings"

// PhraseSet matches lowercase phrases as case-insensitive substrings.
type PhraseSet struct {
	phrases []string
}

// NewPhraseSet lowercases and stores phrases, skipping blanks.
func NewPhraseSet(phrases []string) PhraseSet {
	ps := PhraseSet{phrases: make([]string, 0, len(phrases))}
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			ps.phrases = append(ps.phrases, p)
		}
	}
	return ps
}

// Len returns the number of phrases.
func (ps PhraseSet) Len() int { return len(ps.phrases) }

// Match reports whether text contains any phrase.
func (ps PhraseSet) Match(text string) bool {
	_, ok := ps.First(text)
	return ok
}

// First returns the first phrase contained in text.
func (ps PhraseSet) First(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	lower := strings.ToLower(text)
	for _, p := range ps.phrases {
		if strings.Contains(lower, p) {
			return p, true
		}
	}
	return "", false
}
