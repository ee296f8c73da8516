package memory

import "regexp"

// RedactionMarker replaces every matched credential-shaped substring.
const RedactionMarker = "[REDACTED]"

// secretPatterns run in order against the already-redacted output of the
// previous pattern, so overlapping matches cannot reintroduce secret
// material. Best-effort scrubbing, not DLP: callers must not treat a
// redacted memory as guaranteed secret-free.
var secretPatterns = []*regexp.Regexp{
	// Authorization headers with bearer tokens
	regexp.MustCompile(`(?i)\bAuthorization:\s*Bearer\s+[A-Za-z0-9\-._~+/]+=*`),
	// Bare bearer tokens
	regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9\-._~+/]+=*`),
	// AWS access key ids (heuristic)
	regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
	// api_key= / openai-key: style assignments
	regexp.MustCompile(`(?i)\b(openai|api)[-_ ]?key\b\s*[:=]\s*['"]?[^'"\s]+`),
	// token= / token: style assignments
	regexp.MustCompile(`(?i)\btoken\b\s*[:=]\s*['"]?[^'"\s]+`),
}

// RedactSecrets replaces credential-shaped substrings with RedactionMarker.
// Pure and total: never fails, returns the input unchanged when nothing
// matches.
func RedactSecrets(text string) string {
	redacted := text
	for _, pat := range secretPatterns {
		redacted = pat.ReplaceAllString(redacted, RedactionMarker)
	}
	return redacted
}
