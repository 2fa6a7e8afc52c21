package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestNew_Formats(t *testing.T) {
	tests := []struct {
		name   string
		format string
		check  func(string) bool
	}{
		{"json", "json", func(s string) bool { return strings.HasPrefix(s, "{") }},
		{"default is json", "", func(s string) bool { return strings.HasPrefix(s, "{") }},
		{"text", "text", func(s string) bool { return strings.Contains(s, "msg=hello") }},
		{"console", "console", func(s string) bool { return strings.Contains(s, "msg=hello") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := New(Config{Level: "info", Format: tt.format, Output: &buf})
			l.Info("hello")
			if !tt.check(buf.String()) {
				t.Errorf("unexpected output %q", buf.String())
			}
		})
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Output: &buf})
	defer SetLevel("info")

	l.Info("dropped")
	l.Warn("kept")
	if lines := decodeLines(t, &buf); len(lines) != 1 || lines[0]["msg"] != "kept" {
		t.Fatalf("lines = %v", lines)
	}
	if GetLevel() != "warn" {
		t.Errorf("GetLevel() = %s, want warn", GetLevel())
	}

	buf.Reset()
	SetLevel("debug")
	l.Debug("now visible")
	if lines := decodeLines(t, &buf); len(lines) != 1 {
		t.Errorf("debug not emitted after SetLevel: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRedaction(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", Output: &buf})
	defer SetLevel("info")

	l.With("api_key", "plain-secret").Info("event",
		"key_id", "gaak-01HZX",
		"tenant_id", "acme",
		"override_token", "abc",
		"header", "Bearer gaak-01HZX:topsecret",
		"pair", "gaak-01HZX:topsecret",
		"raw", "gaas_topsecret",
		"jwt", "eyJhbGciOiJIUzI1NiJ9.eyJ0aWQiOiJhIn0.sig",
		slog.Group("req", slog.String("authorization", "x")),
	)

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("lines = %d", len(lines))
	}
	m := lines[0]
	if strings.Contains(buf.String(), "topsecret") || strings.Contains(buf.String(), "plain-secret") {
		t.Fatalf("secret leaked: %s", buf.String())
	}

	want := map[string]string{
		"key_id":         "gaak-01HZX",
		"tenant_id":      "acme",
		"api_key":        Redacted,
		"override_token": Redacted,
		"header":         "Bearer " + Redacted,
		"pair":           "gaak-01HZX:" + Redacted,
		"raw":            "gaas_" + Redacted,
		"jwt":            "eyJ" + Redacted,
	}
	for k, v := range want {
		if m[k] != v {
			t.Errorf("%s = %v, want %v", k, m[k], v)
		}
	}
	if req, ok := m["req"].(map[string]any); !ok || req["authorization"] != Redacted {
		t.Errorf("group not redacted: %v", m["req"])
	}
}

func TestIsSensitiveKey(t *testing.T) {
	tests := map[string]bool{
		"password":       true,
		"override_token": true,
		"Authorization":  true,
		"secret_hash":    true,
		"api_key":        true,
		"key_id":         false,
		"token_id":       false,
		"tenant_id":      false,
		"decision":       false,
	}
	for k, want := range tests {
		if got := IsSensitiveKey(k); got != want {
			t.Errorf("IsSensitiveKey(%q) = %v, want %v", k, got, want)
		}
	}
}

func TestRedactString(t *testing.T) {
	if got := RedactString("hello"); got != "hello" {
		t.Errorf("RedactString(hello) = %q", got)
	}
	if got := RedactString("bearer abc"); got != "bearer "+Redacted {
		t.Errorf("RedactString(bearer) = %q", got)
	}
}

func TestContext(t *testing.T) {
	ctx := context.Background()
	if FromContext(ctx) != slog.Default() {
		t.Error("FromContext() without logger should return slog.Default()")
	}
	if RequestIDFromContext(ctx) != "" {
		t.Error("RequestIDFromContext() should be empty")
	}

	var buf bytes.Buffer
	l := New(Config{Level: "info", Output: &buf})
	ctx = WithLogger(ctx, l)
	ctx = WithRequestID(ctx, "req-1")

	if RequestIDFromContext(ctx) != "req-1" {
		t.Errorf("RequestIDFromContext() = %q", RequestIDFromContext(ctx))
	}
	L(ctx).Info("scoped")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 || lines[0]["request_id"] != "req-1" {
		t.Errorf("lines = %v", lines)
	}
}

func TestDiscard(t *testing.T) {
	Discard().Error("nothing")
}
