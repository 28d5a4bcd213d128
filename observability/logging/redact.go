package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces credential values in log output.
const RedactedValue = "[REDACTED]"

// sensitiveFragments are matched case-insensitively against attribute keys,
// so "jwt_secret" and "bearer_token" are covered by "secret" and "token".
var sensitiveFragments = []string{
	"authorization",
	"token",
	"secret",
	"passphrase",
	"password",
	"dsn",
}

// IsSensitive reports whether an attribute key names a credential.
func IsSensitive(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	if normalized == "" {
		return false
	}
	for _, fragment := range sensitiveFragments {
		if strings.Contains(normalized, fragment) {
			return true
		}
	}
	return false
}

// MaskField returns the attribute with its value replaced when the key is
// sensitive. Empty values are kept so missing credentials stay visible.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || !IsSensitive(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// redactAttr is applied by the handler to every attribute, including those
// logged without MaskField.
func redactAttr(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() == slog.KindGroup || !IsSensitive(attr.Key) {
		return attr
	}
	if attr.Value.Kind() == slog.KindString && strings.TrimSpace(attr.Value.String()) == "" {
		return attr
	}
	return slog.String(attr.Key, RedactedValue)
}
