package search

import (
	"strings"
	"unicode"
)

// ngramSize is the length of sub-token n-grams generated for fuzzy recall.
const ngramSize = 3

// Normalize lowercases text, replaces anything that is not a letter, digit or
// whitespace with a space, collapses runs of whitespace and trims. CJK
// ideographs count as letters and pass through untouched. Total over any
// input; the empty string normalizes to the empty string.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	lowered := strings.ToLower(text)
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, lowered)
	return strings.Join(strings.Fields(mapped), " ")
}

// Tokenize splits normalized text into tokens: the literal whitespace-delimited
// words first, then every contiguous 3-rune substring of each word longer than
// 3 runes. The n-grams exist only to widen fuzzy candidate discovery; scoring
// always runs against the literal words or the normalized content.
func Tokenize(normalized string) []string {
	words := strings.Fields(normalized)
	if len(words) == 0 {
		return nil
	}
	tokens := make([]string, 0, len(words))
	tokens = append(tokens, words...)
	for _, w := range words {
		runes := []rune(w)
		if len(runes) <= ngramSize {
			continue
		}
		for i := 0; i+ngramSize <= len(runes); i++ {
			tokens = append(tokens, string(runes[i:i+ngramSize]))
		}
	}
	return tokens
}

// Analyze is the full pipeline from raw text to token sequence.
func Analyze(text string) (normalized string, tokens []string) {
	normalized = Normalize(text)
	return normalized, Tokenize(normalized)
}
