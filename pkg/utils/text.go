// Package utils provides shared utilities for text, vectors and logging.
package utils

import "unicode/utf8"

// Truncate returns s cut to maxRunes runes, with "..." appended if truncated.
// If maxRunes is 0 or negative, returns s unchanged.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	return string([]rune(s)[:maxRunes]) + "..."
}
