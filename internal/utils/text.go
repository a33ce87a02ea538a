package utils

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// Preview is Truncate with a trailing ellipsis when s was cut.
func Preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return Truncate(s, n) + "..."
}

// SplitSentences splits text after each period, keeping the period. Chunks
// joined back together give the original text.
func SplitSentences(text string) []string {
	var chunks []string
	for {
		i := strings.IndexByte(text, '.')
		if i < 0 {
			break
		}
		chunks = append(chunks, text[:i+1])
		text = text[i+1:]
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

// IsValidUUID reports whether s is a UUID in canonical hyphenated form.
func IsValidUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
