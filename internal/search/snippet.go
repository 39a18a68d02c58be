package search

import "strings"

// snippetWindow is the number of runes kept on each side of the first match.
const snippetWindow = 60

// snippetFromText extracts a context window around the first occurrence of
// queryLower in content, expanded outward to word boundaries, with ellipses
// marking truncation. Rune-based indexing keeps UTF-8 content intact.
func snippetFromText(content, queryLower string, windowSize int) string {
	if content == "" {
		return ""
	}
	lower := strings.ToLower(content)
	matchIdx := -1
	if queryLower != "" {
		matchIdx = strings.Index(lower, queryLower)
	}
	runes := []rune(content)

	if matchIdx == -1 {
		if len(runes) > windowSize*2 {
			return string(runes[:windowSize*2]) + "..."
		}
		return content
	}

	matchStart := byteIndexToRuneIndex(content, matchIdx)
	matchEnd := byteIndexToRuneIndex(content, matchIdx+len(queryLower))

	start := matchStart - windowSize
	if start < 0 {
		start = 0
	}
	end := matchEnd + windowSize
	if end > len(runes) {
		end = len(runes)
	}

	for start > 0 && runes[start-1] != ' ' && runes[start-1] != '\n' {
		start--
	}
	for end < len(runes) && runes[end] != ' ' && runes[end] != '\n' {
		end++
	}

	snippet := string(runes[start:end])
	prefix := ""
	suffix := ""
	if start > 0 {
		prefix = "..."
	}
	if end < len(runes) {
		suffix = "..."
	}

	return prefix + strings.TrimSpace(snippet) + suffix
}

// byteIndexToRuneIndex converts a byte index to a rune index without building
// substring copies.
func byteIndexToRuneIndex(s string, byteIdx int) int {
	if byteIdx <= 0 {
		return 0
	}
	if byteIdx >= len(s) {
		return len([]rune(s))
	}
	runeCount := 0
	for i := range s {
		if i >= byteIdx {
			break
		}
		runeCount++
	}
	return runeCount
}
