package store

import (
	"strings"
	"unicode"
)

// cjkTables covers scripts written without word separators. Text in
// these scripts is tokenized one character at a time since no segmenter
// is available.
var cjkTables = []*unicode.RangeTable{
	unicode.Han,
	unicode.Hiragana,
	unicode.Katakana,
	unicode.Hangul,
}

// Tokenize splits text into lowercase search tokens: runs of ASCII
// letters and digits, plus one token per CJK character. Every other
// rune acts as a separator.
func Tokenize(text string) []string {
	var tokens []string
	var run strings.Builder

	flush := func() {
		if run.Len() > 0 {
			tokens = append(tokens, run.String())
			run.Reset()
		}
	}

	for _, r := range text {
		switch {
		case isASCIIAlphanumeric(r):
			run.WriteRune(asciiLower(r))
		case isCJK(r):
			flush()
			tokens = append(tokens, string(r))
		default:
			flush()
		}
	}
	flush()

	return tokens
}

func isASCIIAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func asciiLower(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}

func isCJK(r rune) bool {
	return unicode.In(r, cjkTables...)
}
