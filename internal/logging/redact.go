package logging

import (
	"regexp"
	"strings"
)

// RedactedValue replaces secrets in log output.
const RedactedValue = "[REDACTED]"

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._~+/=-]{8,}`),
	regexp.MustCompile(`(?i)(access_token|refresh_token|client_secret)=[^&\s]+`),
}

// Redact strips bearer tokens and token query parameters from s, e.g. a
// streaming URL before it is logged.
func Redact(s string) string {
	result := s
	for _, pattern := range secretPatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			if i := strings.IndexByte(match, '='); i > 0 && !strings.HasPrefix(strings.ToLower(match), "bearer") {
				return match[:i+1] + RedactedValue
			}
			return RedactedValue
		})
	}
	return result
}

// MaskToken keeps only the edges of a token.
func MaskToken(tok string) string {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return ""
	}
	if len(tok) <= 8 {
		return "***"
	}
	return tok[:3] + "***" + tok[len(tok)-3:]
}
