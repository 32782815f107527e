package textutil

import (
	"reflect"
	"testing"
)

func TestWords_DropsShortAndStopWords(t *testing.T) {
	got := Words("The cache IS stale, and we should rebuild it!")
	for _, w := range []string{"cache", "stale", "rebuild"} {
		if _, ok := got[w]; !ok {
			t.Errorf("Words missing %q: %v", w, got)
		}
	}
	for _, w := range []string{"the", "is", "and", "we", "it", "should"} {
		if _, ok := got[w]; ok {
			t.Errorf("Words kept %q", w)
		}
	}
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"alpha beta gamma", "alpha beta gamma", 1},
		{"alpha beta", "gamma delta", 0},
		{"alpha beta gamma", "alpha beta delta", 0.5},
		{"", "", 0},
	}
	for _, tt := range tests {
		if got := Jaccard(Words(tt.a), Words(tt.b)); got != tt.want {
			t.Errorf("Jaccard(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestOverlapMin_FavorsSmallerSet(t *testing.T) {
	short := Words("retry backoff")
	long := Words("retry backoff jitter timeout circuit breaker")
	if got := OverlapMin(short, long); got != 1 {
		t.Errorf("OverlapMin = %v, want 1", got)
	}
	if got := OverlapMin(short, Words("")); got != 0 {
		t.Errorf("OverlapMin with empty = %v, want 0", got)
	}
}

func TestNGrams(t *testing.T) {
	toks := Tokens("check the error path")
	want := []string{"check the error", "the error path"}
	if got := NGrams(toks, 3); !reflect.DeepEqual(got, want) {
		t.Errorf("NGrams = %v, want %v", got, want)
	}
	if got := NGrams(toks, 5); got != nil {
		t.Errorf("NGrams over length = %v, want nil", got)
	}
}

func TestPhraseSet(t *testing.T) {
	ps := NewPhraseSet([]string{"  Actually That's Wrong ", "", "nope"})
	if ps.Len() != 2 {
		t.Fatalf("Len = %d, want 2", ps.Len())
	}
	if p, ok := ps.First("well ACTUALLY that's wrong, sorry"); !ok || p != "actually that's wrong" {
		t.Errorf("First = %q, %v", p, ok)
	}
	if ps.Match("") {
		t.Error("Match on empty text should be false")
	}
}
