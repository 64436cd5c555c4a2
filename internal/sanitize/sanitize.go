// Package sanitize bounds and cleans diagnostic text before it is
// persisted or printed.
package sanitize

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TruncateUTF8 caps s at maxBytes without splitting a multi-byte rune.
func TruncateUTF8(s string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	if len(s) <= maxBytes {
		return s
	}
	cut := s[:maxBytes]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}

// csiScanLimit caps the CSI parameter scan so a malformed sequence with no
// final byte cannot swallow the rest of the line.
const csiScanLimit = 64

// StripControlChars removes ANSI escape sequences and control characters
// (newline and tab excepted) from s. Captured engine output carries
// uvicorn's color codes; strip them before display.
func StripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] == 0x1b {
			i = skipEscape(s, i)
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == '\n' || r == '\t' || !unicode.IsControl(r) {
			b.WriteString(s[i : i+size])
		}
		i += size
	}
	return b.String()
}

// skipEscape returns the index just past the escape sequence opening at i.
func skipEscape(s string, i int) int {
	// CSI: ESC [ parameters, final byte in 0x40-0x7E.
	if i+1 < len(s) && s[i+1] == '[' {
		j := i + 2
		limit := min(j+csiScanLimit, len(s))
		for j < limit && (s[j] < 0x40 || s[j] > 0x7e) {
			j++
		}
		if j < len(s) && s[j] >= 0x40 && s[j] <= 0x7e {
			j++
		}
		return j
	}
	// OSC: ESC ] payload, terminated by BEL or ESC backslash.
	if i+1 < len(s) && s[i+1] == ']' {
		for j := i + 2; j < len(s); j++ {
			if s[j] == 0x07 {
				return j + 1
			}
			if s[j] == 0x1b && j+1 < len(s) && s[j+1] == '\\' {
				return j + 2
			}
		}
		return len(s)
	}
	// Anything else is a two-byte escape.
	return min(i+2, len(s))
}
