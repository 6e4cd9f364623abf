package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive attribute values in log output.
const RedactedValue = "[REDACTED]"

// sensitivePrefixes name attributes that carry signing material. A key
// matches when it equals a prefix or starts with the prefix followed by "_".
var sensitivePrefixes = []string{
	"signature",
	"passphrase",
	"private_key",
	"keystore_pass",
}

// IsSensitive reports whether values logged under key must be masked.
func IsSensitive(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	for _, prefix := range sensitivePrefixes {
		if normalized == prefix || strings.HasPrefix(normalized, prefix+"_") {
			return true
		}
	}
	return false
}

// MaskValue returns the placeholder for non-empty values and leaves empty
// ones untouched.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField builds a string attribute, masking the value when key is sensitive.
func MaskField(key, value string) slog.Attr {
	if IsSensitive(key) {
		return slog.String(key, MaskValue(value))
	}
	return slog.String(key, value)
}

// redactAttr is applied to every record by the handler built in Setup, so
// sensitive values logged without MaskField are still masked.
func redactAttr(attr slog.Attr) slog.Attr {
	if !IsSensitive(attr.Key) {
		return attr
	}
	if attr.Value.Kind() == slog.KindString && attr.Value.String() == "" {
		return attr
	}
	return slog.String(attr.Key, RedactedValue)
}
