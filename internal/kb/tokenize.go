package kb

import (
	"regexp"
	"strings"
)

var tokenRe = regexp.MustCompile(`[a-z0-9]+`)

// TokenSet is an unordered set of lowercase alphanumeric tokens.
type TokenSet map[string]struct{}

// Tokenize lowercases text and returns its maximal [a-z0-9] runs as a set.
// Any other character, including non-ASCII letters, separates tokens.
func Tokenize(text string) TokenSet {
	out := make(TokenSet)
	for _, tok := range tokenRe.FindAllString(strings.ToLower(text), -1) {
		out[tok] = struct{}{}
	}
	return out
}

// Has reports whether tok is in the set.
func (s TokenSet) Has(tok string) bool {
	_, ok := s[tok]
	return ok
}

func (s TokenSet) addAll(other TokenSet) {
	for tok := range other {
		s[tok] = struct{}{}
	}
}

// jaccard returns |a ∩ b| / |a ∪ b|, or 0 when either set is empty.
func jaccard(a, b TokenSet) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for tok := range small {
		if large.Has(tok) {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
