package filter

import (
	"strings"
)

var quoteStripper = strings.NewReplacer(
	`"`, "",
	"«", "",
	"»", "",
	"„", "",
	"“", "",
	"”", "",
)

// Query is the normalised, immutable form of a user's search text.
type Query struct {
	raw    string
	tokens []string
}

func NewQuery(raw string) Query {
	return Query{
		raw:    strings.TrimSpace(raw),
		tokens: dedupe(Tokenize(raw)),
	}
}

func (q Query) Raw() string {
	return q.raw
}

// Tokens returns a copy of the query tokens in input order.
func (q Query) Tokens() []string {
	out := make([]string, len(q.tokens))
	copy(out, q.tokens)
	return out
}

// Tokenize lower-cases text, drops quote characters and splits it on
// whitespace and then on hyphens.
func Tokenize(text string) []string {
	text = quoteStripper.Replace(strings.ToLower(text))

	var tokens []string
	for _, word := range strings.Fields(text) {
		for _, part := range strings.Split(word, "-") {
			if part != "" {
				tokens = append(tokens, part)
			}
		}
	}
	return tokens
}

// Matches reports whether every query token appears as a whole token of name.
func Matches(q Query, name string) bool {
	if len(q.tokens) == 0 {
		return true
	}
	set := tokenSet(name)
	for _, token := range q.tokens {
		if _, ok := set[token]; !ok {
			return false
		}
	}
	return true
}

// Excluded reports whether name contains all tokens of any exclusion set.
func Excluded(name string, exclusions [][]string) bool {
	if len(exclusions) == 0 {
		return false
	}
	set := tokenSet(name)
	for _, group := range exclusions {
		if len(group) == 0 {
			continue
		}
		all := true
		for _, token := range group {
			if _, ok := set[token]; !ok {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

func tokenSet(name string) map[string]struct{} {
	tokens := Tokenize(name)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func dedupe(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
