package search

import (
	"strings"
	"unicode/utf8"
)

// Snippet shortens content to at most maxRunes runes for display, preferring
// to cut at a space, and appends "..." when it cut anything.
func Snippet(content string, maxRunes int) string {
	content = strings.TrimSpace(content)
	if maxRunes <= 0 || utf8.RuneCountInString(content) <= maxRunes {
		return content
	}
	cut := string([]rune(content)[:maxRunes])
	if i := strings.LastIndexByte(cut, ' '); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ") + "..."
}
