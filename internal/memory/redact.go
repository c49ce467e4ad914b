package memory

import "regexp"

type redactRule struct {
	re   *regexp.Regexp
	repl string
}

// Credential patterns masked before chunk text is embedded or stored.
// Order matters: whole key blocks first, then bearer headers, then known
// token prefixes, then generic assignments.
var redactRules = []redactRule{
	{regexp.MustCompile(`(?s)-----BEGIN [A-Z0-9 ]*PRIVATE KEY-----.*?-----END [A-Z0-9 ]*PRIVATE KEY-----`), "[REDACTED_PRIVATE_KEY]"},
	{regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=-]{8,}`), "Bearer [REDACTED]"},
	// GitHub
	{regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}`), "[REDACTED]"},
	{regexp.MustCompile(`\bgithub_pat_[A-Za-z0-9_]{22,}`), "[REDACTED]"},
	// OpenAI / Anthropic style
	{regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{20,}`), "[REDACTED]"},
	// Slack
	{regexp.MustCompile(`\bxox[abprs]-[A-Za-z0-9-]{10,}`), "[REDACTED]"},
	// AWS access keys
	{regexp.MustCompile(`\b(?:AKIA|ASIA)[A-Z0-9]{16}\b`), "[REDACTED]"},
	// key|secret|password|token = value; quotes around the value are kept
	{regexp.MustCompile(`(?i)\b((?:api[_-]?key|apikey|secret|password|passwd|token|key)["']?\s*[:=]\s*)(?:(["'])[^"'\s]{4,}["']|[^\s"',;]{4,})`), "${1}${2}[REDACTED]${2}"},
}

// Redact replaces recognizable secrets in text with fixed placeholders.
// Redacting already-redacted text is a no-op.
func Redact(text string) string {
	if text == "" {
		return ""
	}
	for _, r := range redactRules {
		text = r.re.ReplaceAllString(text, r.repl)
	}
	return text
}
