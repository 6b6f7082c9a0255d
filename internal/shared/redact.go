package shared

import (
	"regexp"
	"strings"
)

const redactedPlaceholder = "[REDACTED]"

// secretPatterns matches secret-bearing values that can show up in task args,
// results, and error strings when plays carry connection credentials.
var secretPatterns = []*regexp.Regexp{
	// key=value / key: value forms for password-like argument names
	regexp.MustCompile(`(?i)(connection_password|remote_password|become_pass(?:word)?|login_password|vault_pass(?:word)?)\s*[:=]\s*"?([^\s"]+)"?`),
	// API keys and tokens handed to cloud modules
	regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret[_-]?key|auth[_-]?token|access[_-]?token)\s*[:=]\s*"?([A-Za-z0-9_\-./+=]{12,})"?`),
	// Bearer tokens in raw header strings
	regexp.MustCompile(`(?i)(Bearer\s+)([A-Za-z0-9_\-./+=]{16,})`),
	// Private key blocks pasted into vars
	regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`),
}

// Redact replaces secret-bearing patterns in the input string with [REDACTED].
func Redact(input string) string {
	if input == "" {
		return input
	}
	result := input
	for _, pat := range secretPatterns {
		result = pat.ReplaceAllStringFunc(result, func(match string) string {
			submatch := pat.FindStringSubmatch(match)
			if len(submatch) >= 3 {
				return submatch[1] + redactedPlaceholder
			}
			return redactedPlaceholder
		})
	}
	return result
}

// RedactArgValue checks whether a task-arg key names a secret and returns a
// redacted value if so. Used when logging task args.
func RedactArgValue(key, value string) string {
	keyLower := strings.ToLower(key)
	sensitiveKeys := []string{"password", "passwd", "secret", "token", "api_key", "apikey", "private_key", "credential"}
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(keyLower, sensitive) {
			return redactedPlaceholder
		}
	}
	return value
}
