package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ASCII runs split on anything that is not a letter or digit
func TestTokenize_ASCIIRuns(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect []string
	}{
		{
			name:   "whitespace",
			input:  "compare two groups",
			expect: []string{"compare", "two", "groups"},
		},
		{
			name:   "hyphens split",
			input:  "two-sample t-test",
			expect: []string{"two", "sample", "t", "test"},
		},
		{
			name:   "digits stay in runs",
			input:  "p53 and BRCA1",
			expect: []string{"p53", "and", "brca1"},
		},
		{
			name:   "punctuation",
			input:  "means (of groups).",
			expect: []string{"means", "of", "groups"},
		},
		{
			name:   "non-ASCII letters separate",
			input:  "café au lait",
			expect: []string{"caf", "au", "lait"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, Tokenize(tt.input))
		})
	}
}

// Tokens are lowercased
func TestTokenize_Lowercases(t *testing.T) {
	tokens := Tokenize("ANOVA Compares MEANS")
	assert.Equal(t, []string{"anova", "compares", "means"}, tokens)
}

// CJK scripts tokenize one character at a time
func TestTokenize_CJKPerCharacter(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect []string
	}{
		{
			name:   "han",
			input:  "統計検定",
			expect: []string{"統", "計", "検", "定"},
		},
		{
			name:   "hiragana",
			input:  "けんてい",
			expect: []string{"け", "ん", "て", "い"},
		},
		{
			name:   "katakana",
			input:  "カタカナ",
			expect: []string{"カ", "タ", "カ", "ナ"},
		},
		{
			name:   "hangul",
			input:  "가설 검정",
			expect: []string{"가", "설", "검", "정"},
		},
		{
			name:   "mixed with ASCII",
			input:  "t検定test",
			expect: []string{"t", "検", "定", "test"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, Tokenize(tt.input))
		})
	}
}

// Degenerate inputs produce no tokens
func TestTokenize_EmptyInputs(t *testing.T) {
	require.Empty(t, Tokenize(""))
	require.Empty(t, Tokenize("   \t\n"))
	require.Empty(t, Tokenize("!!! --- ???"))
}
