package tools

import "github.com/nextlevelbuilder/noteindex/internal/memory"

// ScrubCredentials masks secrets in tool output with the same rules used
// when chunks are indexed, so text written before redaction existed is
// still masked on the way out.
func ScrubCredentials(text string) string {
	if text == "" {
		return text
	}
	return memory.Redact(text)
}
