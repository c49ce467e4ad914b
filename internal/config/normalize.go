package config

import (
	"regexp"
	"strings"
)

// DefaultWorkspaceID is used when no workspace is named.
const DefaultWorkspaceID = "default"

const maxWorkspaceIDLen = 128

var (
	validWorkspaceRe = regexp.MustCompile(`^[a-z0-9][a-z0-9._:@-]{0,127}$`)
	invalidChars     = regexp.MustCompile(`[^a-z0-9._:@-]+`)
	leadingJunk      = regexp.MustCompile(`^[._:@-]+`)
	trailingDash     = regexp.MustCompile(`-+$`)
)

// NormalizeWorkspaceID converts a user-provided name into a valid workspace ID:
//   - Lowercase, max 128 chars
//   - Only [a-z0-9._:@-] allowed, first char alphanumeric
//   - Invalid runs replaced with "-", trailing dashes stripped
//   - Empty result defaults to "default"
func NormalizeWorkspaceID(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return DefaultWorkspaceID
	}

	lower := strings.ToLower(trimmed)
	if validWorkspaceRe.MatchString(lower) {
		return lower
	}

	result := invalidChars.ReplaceAllString(lower, "-")
	result = leadingJunk.ReplaceAllString(result, "")
	if len(result) > maxWorkspaceIDLen {
		result = result[:maxWorkspaceIDLen]
	}
	result = trailingDash.ReplaceAllString(result, "")

	if result == "" {
		return DefaultWorkspaceID
	}
	return result
}
