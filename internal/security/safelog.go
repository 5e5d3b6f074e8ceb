// Package security masks credentials before they reach logs or output.
package security

import (
	"regexp"
	"strings"
)

// sensitiveFields contains field names that should be masked in logs.
var sensitiveFields = map[string]bool{
	"api_key":       true,
	"api_secret":    true,
	"apikey":        true,
	"apisecret":     true,
	"secret":        true,
	"password":      true,
	"token":         true,
	"access_token":  true,
	"request_token": true,
	"auth_token":    true,
	"credential":    true,
	"credentials":   true,
}

// sensitivePatterns contains regex patterns for sensitive data. Group 1 is
// kept, group 2 is masked.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)((?:api[_-]?key|api[_-]?secret|access[_-]?token|request[_-]?token|auth[_-]?token|password)["']?\s*[=:]\s*["']?)([^\s"'&,}]+)`),
	// Kite Connect authorization header: "token api_key:access_token"
	regexp.MustCompile(`(?i)(token\s+[A-Za-z0-9]+:)([A-Za-z0-9]+)`),
}

// IsSensitiveField checks if a field name is sensitive.
func IsSensitiveField(field string) bool {
	return sensitiveFields[strings.ToLower(field)]
}

// MaskCredential masks a credential, keeping at most four characters at
// each end.
func MaskCredential(value string) string {
	if len(value) == 0 {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	if len(value) <= 8 {
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// Redact masks credential values embedded in free text such as error
// messages and URLs.
func Redact(input string) string {
	result := input
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			groups := pattern.FindStringSubmatch(match)
			if len(groups) != 3 {
				return MaskCredential(match)
			}
			return groups[1] + MaskCredential(groups[2])
		})
	}
	return result
}

// ContainsSensitiveData checks if a string contains sensitive data patterns.
func ContainsSensitiveData(input string) bool {
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(input) {
			return true
		}
	}
	return false
}

// RedactFields returns a copy of data with sensitive fields masked.
func RedactFields(data map[string]string) map[string]string {
	result := make(map[string]string, len(data))
	for k, v := range data {
		if IsSensitiveField(k) {
			result[k] = MaskCredential(v)
		} else {
			result[k] = Redact(v)
		}
	}
	return result
}
