package command

import (
	"net/http"
	"strings"
	"testing"
)

func TestSystemCommand(t *testing.T) {
	cmd := SystemCommand()
	for _, name := range []string{"health", "ready", "reload-zones", "version"} {
		findSub(cmd, name)
	}
}

func TestSystemHealth(t *testing.T) {
	server := newMockServer()
	defer server.Close()
	server.handle("GET /health", func(w http.ResponseWriter, r *http.Request) {
		envelope(w, map[string]string{"status": "healthy", "version": "v1.2.0"})
	})

	env := makeTestContext(server, findSub(SystemCommand(), "health"))
	if err := systemHealth(env.ctx); err != nil {
		t.Fatalf("systemHealth() error = %v", err)
	}
	if out := env.stdout.String(); !strings.Contains(out, "healthy") || !strings.Contains(out, "v1.2.0") {
		t.Errorf("output = %s", out)
	}
}

func TestSystemHealth_Unreachable(t *testing.T) {
	server := newMockServer()
	url := server.URL
	server.Close()

	env := makeTestContext(nil, findSub(SystemCommand(), "health"), "--server", url)
	if err := systemHealth(env.ctx); err == nil || !strings.Contains(err.Error(), "unreachable") {
		t.Errorf("error = %v", err)
	}
}

func TestSystemReady(t *testing.T) {
	server := newMockServer()
	defer server.Close()
	server.handle("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		envelope(w, map[string]any{"status": "ready", "checks": map[string]string{"storage": "ok"}})
	})

	env := makeTestContext(server, findSub(SystemCommand(), "ready"))
	if err := systemReady(env.ctx); err != nil {
		t.Fatalf("systemReady() error = %v", err)
	}
	out := env.stdout.String()
	if !strings.Contains(out, "Status: ready") || !strings.Contains(out, "storage") {
		t.Errorf("output = %s", out)
	}
}

func TestSystemReady_NotReady(t *testing.T) {
	server := newMockServer()
	defer server.Close()
	server.handle("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"code":"GA-SYS-5030","message":"not ready","details":{"storage":"dial tcp: connection refused"}}`))
	})

	env := makeTestContext(server, findSub(SystemCommand(), "ready"))
	err := systemReady(env.ctx)
	if err == nil {
		t.Fatal("expected error")
	}
	out := env.stdout.String()
	if !strings.Contains(out, "not ready") || !strings.Contains(out, "connection refused") {
		t.Errorf("output = %s", out)
	}
}

func TestSystemReloadZones(t *testing.T) {
	server := newMockServer()
	defer server.Close()
	server.handle("POST /admin/v1/zones/reload", func(w http.ResponseWriter, r *http.Request) {
		envelope(w, map[string]any{"tenants": 3, "reloadedAt": "2026-03-02T09:00:00Z"})
	})

	env := makeTestContext(server, findSub(SystemCommand(), "reload-zones"))
	if err := systemReloadZones(env.ctx); err != nil {
		t.Fatalf("systemReloadZones() error = %v", err)
	}
	if !strings.Contains(env.stdout.String(), "3 tenants") {
		t.Errorf("output = %s", env.stdout.String())
	}
}

func TestSystemVersion(t *testing.T) {
	env := makeTestContext(nil, findSub(SystemCommand(), "version"))
	if err := systemVersion(env.ctx); err != nil {
		t.Fatalf("systemVersion() error = %v", err)
	}
	if !strings.HasPrefix(env.stdout.String(), "geoattend-cli ") {
		t.Errorf("output = %s", env.stdout.String())
	}
}
