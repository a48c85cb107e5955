package text

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize prepares a raw prompt string for tokenization: it collapses
// line endings to spaces, trims surrounding whitespace, and applies Unicode
// NFC normalization so visually-identical prompts tokenize identically.
// Unlike a user-facing synthesis input, an empty prompt is valid (an empty
// negative prompt is explicitly allowed by PromptOptions), so this never
// errors.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")

	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}

	return norm.NFC.String(strings.TrimSpace(s))
}
