package logger

import (
	"log/slog"
	"strings"
)

// Redacted replaces a sensitive value.
const Redacted = "***REDACTED***"

// Key substrings whose values are always redacted.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"token",
	"authorization",
	"api_key",
	"credential",
}

func redactAttr(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		v := a.Value.String()
		if v == "" {
			return a
		}
		if IsSensitiveKey(a.Key) {
			return slog.String(a.Key, Redacted)
		}
		if masked, ok := maskValue(v); ok {
			return slog.String(a.Key, masked)
		}
	case slog.KindGroup:
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			out[i] = redactAttr(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	return a
}

// IsSensitiveKey reports whether values under key must not be logged.
// Identifier keys such as "key_id" are not sensitive.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	if strings.HasSuffix(k, "_id") {
		return false
	}
	for _, p := range sensitiveKeyPatterns {
		if strings.Contains(k, p) {
			return true
		}
	}
	return false
}

// RedactString masks credentials found in s and returns other values as is.
func RedactString(s string) string {
	if masked, ok := maskValue(s); ok {
		return masked
	}
	return s
}

// maskValue recognises credential shapes by value:
//   - "Bearer <anything>" authorization values
//   - "<key_id>:<secret>" API key pairs and bare "gaas_" secrets
//   - compact JWS tokens (override tokens)
func maskValue(v string) (string, bool) {
	if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
		return v[:7] + Redacted, true
	}
	if id, _, ok := strings.Cut(v, ":"); ok && strings.HasPrefix(id, "gaak-") {
		return id + ":" + Redacted, true
	}
	if strings.HasPrefix(v, "gaas_") {
		return "gaas_" + Redacted, true
	}
	if strings.HasPrefix(v, "eyJ") && strings.Count(v, ".") == 2 {
		return "eyJ" + Redacted, true
	}
	return "", false
}
