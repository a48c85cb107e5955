package text

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"passthrough clean text", "Photo of a cute dog.", "Photo of a cute dog."},
		{"trims leading and trailing whitespace", "  Hello world  ", "Hello world"},
		{"collapses internal double spaces", "hello   world", "hello world"},
		{"normalizes CRLF to a single space", "line one\r\nline two", "line one line two"},
		{"normalizes bare CR to a space", "line one\rline two", "line one line two"},
		{"normalizes LF to a space", "line one\nline two", "line one line two"},
		{"preserves unicode content", "Héllo wörld", "Héllo wörld"},
		{"empty input stays empty", "", ""},
		{"whitespace-only collapses to empty", "   \t\n  ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.input)
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
