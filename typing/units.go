package typing

import (
	"strings"
	"unicode"
)

// escapeSet holds the characters that carry a meaning of their own in brace
// notation and must be wrapped to be typed literally.
const escapeSet = "+^%~(){}[]"

// EnterKeys is the unit sent after a job when Enter-at-end is enabled
const EnterKeys = "{ENTER}"

// NeedsEscape reports whether r is wrapped before sending
func NeedsEscape(r rune) bool {
	return strings.ContainsRune(escapeSet, r)
}

// Unit returns the keystroke unit for r and whether r produces one at all.
// Carriage returns are dropped.
func Unit(r rune) (string, bool) {
	if r == '\r' {
		return "", false
	}
	if NeedsEscape(r) {
		return "{" + string(r) + "}", true
	}
	return string(r), true
}

// Units converts text into the ordered sequence of units a job sends
func Units(text string) []string {
	units := make([]string, 0, len(text))
	for _, r := range text {
		if u, ok := Unit(r); ok {
			units = append(units, u)
		}
	}
	return units
}

// Prepare returns text with trailing whitespace removed, as characters
func Prepare(text string) []rune {
	return []rune(strings.TrimRightFunc(text, unicode.IsSpace))
}

// Preview returns the first max characters of text, followed by "..." when
// text is longer.
func Preview(text []rune, max int) string {
	if len(text) > max {
		return string(text[:max]) + "..."
	}
	return string(text)
}
