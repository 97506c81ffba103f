package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"Simple", "Table Lamp", []string{"table", "lamp"}},
		{"Hyphenated", "wi-fi router", []string{"wi", "fi", "router"}},
		{"Quotes stripped", `Лампа "Витафон"`, []string{"лампа", "витафон"}},
		{"Guillemets stripped", "Аппарат «Витафон-Т»", []string{"аппарат", "витафон", "т"}},
		{"Extra whitespace", "  desk \t fan  ", []string{"desk", "fan"}},
		{"Dangling hyphen", "lamp- holder", []string{"lamp", "holder"}},
		{"Empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Tokenize(tt.input))
		})
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		candidate string
		expected  bool
	}{
		{"All tokens present", "table lamp", "LED table lamp", true},
		{"Order independent", "lamp table", "LED table lamp", true},
		{"Missing token", "table lamp", "desk fan", false},
		{"Substring is not a match", "lamp", "lamps for desk", false},
		{"Hyphen split on name", "витафон т", "Витафон-Т аппарат", true},
		{"Hyphen split on query", "витафон-т", "аппарат Витафон Т", true},
		{"Case insensitive", "VITAFON", "vitafon 2", true},
		{"Quoted name", "витафон", `Аппарат "Витафон"`, true},
		{"Empty query matches everything", "", "anything at all", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Matches(NewQuery(tt.query), tt.candidate))
		})
	}
}

func TestMatchesIsIndependentOfQueryOrder(t *testing.T) {
	names := []string{"LED table lamp", "table lamp holder", "desk fan", "lamp"}
	permutations := []string{
		"led table lamp",
		"led lamp table",
		"table led lamp",
		"table lamp led",
		"lamp led table",
		"lamp table led",
	}

	for _, name := range names {
		want := Matches(NewQuery(permutations[0]), name)
		for _, q := range permutations[1:] {
			assert.Equal(t, want, Matches(NewQuery(q), name), "query %q name %q", q, name)
		}
	}
}

func TestQueryTokensAreDeduplicated(t *testing.T) {
	q := NewQuery("lamp Lamp table-lamp")

	assert.Equal(t, []string{"lamp", "table"}, q.Tokens())
	assert.Equal(t, "lamp Lamp table-lamp", q.Raw())
}

func TestExcluded(t *testing.T) {
	exclusions := [][]string{{"матрац", "к"}}

	assert.True(t, Excluded("Чехол к матрац 160x200", exclusions))
	assert.False(t, Excluded("Матрац ортопедический", exclusions))
	assert.False(t, Excluded("Матрац ортопедический", nil))
	assert.False(t, Excluded("anything", [][]string{{}}))
}
