package command

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestSessionGet_Day(t *testing.T) {
	server := newMockServer()
	defer server.Close()
	server.handle("GET /v1/attendance/sessions/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/attendance/sessions/e-1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("date"); got != "2026-03-02" {
			t.Errorf("date = %q", got)
		}
		if got := r.URL.Query().Get("tenantId"); got != "acme" {
			t.Errorf("tenantId = %q", got)
		}
		envelope(w, map[string]any{
			"tenantId":       "acme",
			"employeeId":     "e-1",
			"date":           "2026-03-02",
			"state":          "Open",
			"checkInEventId": "gaev-1",
			"openedAt":       "2026-03-02T08:59:00Z",
			"version":        1,
		})
	})

	env := makeTestContext(server, findSub(SessionCommand(), "get"), "--tenant", "acme", "--date", "2026-03-02", "e-1")
	if err := sessionGet(env.ctx); err != nil {
		t.Fatalf("sessionGet() error = %v", err)
	}
	out := env.stdout.String()
	if !strings.Contains(out, "STATE") || !strings.Contains(out, "Open") || !strings.Contains(out, "2026-03-02") {
		t.Errorf("output = %s", out)
	}
}

func TestSessionGet_DefaultsToToday(t *testing.T) {
	server := newMockServer()
	defer server.Close()
	server.handle("GET /v1/attendance/sessions/", func(w http.ResponseWriter, r *http.Request) {
		envelope(w, map[string]any{"employeeId": "e-1", "state": "None"})
	})

	env := makeTestContext(server, findSub(SessionCommand(), "get"), "e-1")
	if err := sessionGet(env.ctx); err != nil {
		t.Fatalf("sessionGet() error = %v", err)
	}
	req, _ := server.lastRequest()
	if got, want := req.URL.Query().Get("date"), time.Now().Format(dateLayout); got != want {
		t.Errorf("date = %q, want %q", got, want)
	}
}

func TestSessionGet_Range(t *testing.T) {
	server := newMockServer()
	defer server.Close()
	server.handle("GET /v1/attendance/sessions/", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("from") != "2026-03-01" || q.Get("to") != "2026-03-07" || q.Has("date") {
			t.Errorf("query = %v", q)
		}
		envelope(w, map[string]any{
			"items": []map[string]any{
				{"employeeId": "e-1", "date": "2026-03-02", "state": "Closed"},
				{"employeeId": "e-1", "date": "2026-03-03", "state": "Open"},
			},
			"total": 2,
		})
	})

	env := makeTestContext(server, findSub(SessionCommand(), "get"),
		"-o", "json", "--from", "2026-03-01", "--to", "2026-03-07", "e-1")
	if err := sessionGet(env.ctx); err != nil {
		t.Fatalf("sessionGet() error = %v", err)
	}
	var got sessionList
	if err := json.Unmarshal(env.stdout.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if got.Total != 2 || got.Items[0].State != "Closed" {
		t.Errorf("got = %+v", got)
	}
}

func TestSessionGet_InvalidArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing employee", nil, "employee ID required"},
		{"bad date", []string{"--date", "03/02/2026", "e-1"}, "invalid date"},
		{"half range", []string{"--from", "2026-03-01", "e-1"}, "together"},
		{"date and range", []string{"--date", "2026-03-01", "--from", "2026-03-01", "--to", "2026-03-02", "e-1"}, "cannot be combined"},
		{"bad range date", []string{"--from", "2026-13-01", "--to", "2026-03-02", "e-1"}, "invalid date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := makeTestContext(nil, findSub(SessionCommand(), "get"), tt.args...)
			err := sessionGet(env.ctx)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
