package models

import (
	"strings"
	"unicode"
)

// Tokenize lower-cases s and splits it on anything that is not a letter or a
// digit. Duplicate tokens are kept in order.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// QueryTerms returns the distinct tokens of a lexical query in first-seen
// order.
func QueryTerms(query string) []string {
	tokens := Tokenize(query)
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// SearchableText is the document the lexical path matches queries against.
func (f Firm) SearchableText() string {
	return strings.Join([]string{f.Name, f.City, f.State}, " ")
}
