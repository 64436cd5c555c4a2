package sanitize

import (
	"strings"
	"testing"
)

func TestTruncateUTF8(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		input    string
		maxBytes int
		want     string
	}{
		{"ascii short", "hello", 10, "hello"},
		{"ascii exact", "hello", 5, "hello"},
		{"ascii truncate", "hello world", 5, "hello"},
		{"utf8 no split", "héllo", 6, "héllo"},
		{"utf8 mid-char", "héllo", 2, "h"},
		{"emoji no split", "hi🎉x", 4, "hi"},
		{"empty", "", 10, ""},
		{"zero max", "hello", 0, ""},
		{"negative max", "hello", -1, ""},
		{"invalid utf8 prefix", string([]byte{0xff, 'a', 'b'}), 2, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateUTF8(tt.input, tt.maxBytes)
			if got != tt.want {
				t.Errorf("TruncateUTF8(%q, %d) = %q, want %q", tt.input, tt.maxBytes, got, tt.want)
			}
		})
	}
}

func TestStripControlChars(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			"plain text untouched",
			"INFO:     Application startup complete.",
			"INFO:     Application startup complete.",
		},
		{
			"color codes stripped",
			"\x1b[32mINFO\x1b[0m:     Uvicorn running on http://127.0.0.1:22140",
			"INFO:     Uvicorn running on http://127.0.0.1:22140",
		},
		{
			"osc title with bel",
			"\x1b]0;engine\x07ready",
			"ready",
		},
		{
			"osc title with st",
			"\x1b]0;engine\x1b\\ready",
			"ready",
		},
		{
			"newline and tab kept",
			"line1\n\tline2",
			"line1\n\tline2",
		},
		{
			"carriage return dropped",
			"progress\rdone",
			"progressdone",
		},
		{
			"bare escape at end",
			"tail\x1b",
			"tail",
		},
		{
			// The scan gives up after 64 bytes; the remainder of the bogus
			// sequence comes through as ordinary text.
			"unterminated csi capped",
			"\x1b[" + strings.Repeat("1;", 100) + "after",
			strings.Repeat("1;", 68) + "after",
		},
		{
			"multibyte survives",
			"\x1b[1mżółć\x1b[0m",
			"żółć",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StripControlChars(tt.input)
			if got != tt.want {
				t.Errorf("StripControlChars(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
