package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// CleanText normalizes extracted text: invalid UTF-8 is replaced, whitespace runs
// (including newlines, so blank lines disappear too) collapse to one space, the
// result is trimmed, C0/C1 control characters are dropped, and the text is capped
// at MaxContentLength characters plus TruncationMarker.
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "�")
	}
	var b strings.Builder
	b.Grow(len(text))
	wasSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
			continue
		}
		wasSpace = false
		if isControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	return truncate(strings.TrimSpace(b.String()), MaxContentLength)
}

// isControl matches U+0000-U+001F and U+007F-U+009F.
func isControl(r rune) bool {
	return r <= 0x1f || (r >= 0x7f && r <= 0x9f)
}

func truncate(s string, maxChars int) string {
	if utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	n := 0
	for i := range s {
		if n == maxChars {
			return s[:i] + TruncationMarker
		}
		n++
	}
	return s
}
