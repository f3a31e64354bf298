package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces the value of every sensitive attribute.
const RedactedValue = "[REDACTED]"

// sensitiveFragments match attribute keys case-insensitively. Settlement
// payloads are opaque forwarding instructions and never logged in full.
var sensitiveFragments = []string{
	"secret",
	"token",
	"authorization",
	"passphrase",
	"password",
	"privatekey",
	"payload",
}

// IsSensitive reports whether values logged under key are masked.
func IsSensitive(key string) bool {
	normalized := strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(key))
	for _, fragment := range sensitiveFragments {
		if strings.Contains(normalized, fragment) {
			return true
		}
	}
	return false
}

// Redact is installed as the ReplaceAttr hook of every handler Setup builds.
// Empty values pass through so absent fields stay recognisable.
func Redact(_ []string, attr slog.Attr) slog.Attr {
	if attr.Value.Kind() == slog.KindGroup || !IsSensitive(attr.Key) {
		return attr
	}
	if attr.Value.Kind() == slog.KindString && strings.TrimSpace(attr.Value.String()) == "" {
		return attr
	}
	return slog.String(attr.Key, RedactedValue)
}
