package scanner

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds case, applies NFKC and collapses whitespace so visually
// equal notes compare equal.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// Matcher is one trigger phrase, pre-normalized.
type Matcher struct {
	Phrase string
	needle string
}

// NewMatchers builds matchers in the given order. Empty phrases are rejected.
func NewMatchers(phrases []string) ([]Matcher, error) {
	matchers := make([]Matcher, 0, len(phrases))
	for i, phrase := range phrases {
		needle := Normalize(phrase)
		if needle == "" {
			return nil, fmt.Errorf("trigger phrase %d is empty", i+1)
		}
		matchers = append(matchers, Matcher{Phrase: phrase, needle: needle})
	}
	return matchers, nil
}

// Match reports whether the normalized text contains the phrase.
func (m Matcher) Match(normalized string) bool {
	return strings.Contains(normalized, m.needle)
}
