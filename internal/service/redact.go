package service

import "regexp"

// tokenPattern matches session token query values in URLs, including URLs
// embedded in transport error messages.
var tokenPattern = regexp.MustCompile(`(?i)([?&](?:access_)?token=)[^&\s"]+`)

// Redact replaces session token values in s so it can be logged.
func Redact(s string) string {
	return tokenPattern.ReplaceAllString(s, "${1}[REDACTED]")
}
