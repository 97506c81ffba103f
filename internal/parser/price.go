package parser

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// CleanPriceToken strips currency glyphs, whitespace (including narrow
// no-break spaces), colons and thousands separators from a raw price token.
func CleanPriceToken(token string) string {
	var b strings.Builder
	for _, r := range token {
		switch {
		case r > unicode.MaxASCII:
		case unicode.IsSpace(r):
		case r == ':' || r == ',' || r == '.' || r == '\'':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ExtractPrices turns raw price tokens into a (full, discounted) pair. Only
// the first two tokens are considered; the larger is the full price.
func ExtractPrices(tokens []string) (full, discounted int, err error) {
	if len(tokens) < 2 {
		return 0, 0, fmt.Errorf("%w: need two price tokens, got %d", ErrExtraction, len(tokens))
	}

	values := make([]int, 0, 2)
	for _, token := range tokens[:2] {
		cleaned := CleanPriceToken(token)
		v, err := strconv.Atoi(cleaned)
		if err != nil || v < 0 {
			return 0, 0, fmt.Errorf("%w: %q is not a price", ErrExtraction, token)
		}
		values = append(values, v)
	}

	full, discounted = values[0], values[1]
	if discounted > full {
		full, discounted = discounted, full
	}
	return full, discounted, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
