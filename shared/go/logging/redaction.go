package logging

import (
	"regexp"
)

// Redaction patterns for credentials that can reach log lines through
// connection strings or environment dumps.
var (
	// PasswordPattern matches key/value passwords such as libpq "password=..." pairs.
	PasswordPattern = regexp.MustCompile(`(?i)(password[=:]\s*)([^\s"',}]+)`)

	// ConnectionStringPattern matches URL-style connection strings with credentials.
	ConnectionStringPattern = regexp.MustCompile(`://[^:/@\s]+:[^@\s]+@`)

	// SecretPattern matches the database password variable and other *_PW / *SECRET variables.
	SecretPattern = regexp.MustCompile(`(?i)([A-Z_]*(?:SECRET|_PW)[=:]\s*)([^\s"',}]+)`)
)

const redacted = "***REDACTED***"

// RedactString applies redaction patterns to a string, masking sensitive data.
func RedactString(s string) string {
	if s == "" {
		return s
	}

	result := PasswordPattern.ReplaceAllString(s, "${1}"+redacted)
	result = ConnectionStringPattern.ReplaceAllString(result, "://"+redacted+"@")
	result = SecretPattern.ReplaceAllString(result, "${1}"+redacted)
	return result
}
