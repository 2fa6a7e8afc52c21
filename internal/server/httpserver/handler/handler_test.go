package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yndnr/geoattend-go/internal/core/domain"
	"github.com/yndnr/geoattend-go/internal/core/service"
	"github.com/yndnr/geoattend-go/internal/storage/memory"
	"github.com/yndnr/geoattend-go/internal/telemetry/logger"
)

const (
	officeLat = 12.9716
	officeLng = 77.5946
)

var (
	deviceKey = &domain.APIKey{KeyID: "gaak-device", Role: domain.RoleDevice, TenantID: "acme", Status: domain.KeyStatusActive}
	hrKey     = &domain.APIKey{KeyID: "gaak-hr", Role: domain.RoleTenantAdmin, TenantID: "acme", Status: domain.KeyStatusActive}
	adminKey  = &domain.APIKey{KeyID: "gaak-admin", Role: domain.RoleAdmin, Status: domain.KeyStatusActive}
)

type failingZoneSource struct{}

func (failingZoneSource) LoadTenant(context.Context, string) (*domain.TenantConfig, error) {
	return nil, errors.New("zone backend down")
}

type testEnv struct {
	h       *Handler
	keys    *memory.APIKeyStore
	reloads int
}

func newTestEnv(t *testing.T, source service.ZoneSource) *testEnv {
	t.Helper()
	if source == nil {
		source = memory.NewZoneStore(&domain.TenantConfig{
			TenantID: "acme",
			Zones: []*domain.Zone{{
				TenantID:     "acme",
				ZoneID:       "blr-hq",
				CenterLat:    officeLat,
				CenterLng:    officeLng,
				RadiusMeters: 200,
			}},
		})
	}
	cfg := service.DefaultAttendanceServiceConfig()
	cfg.ReorderHold = 0

	zones := service.NewZoneRegistry(source, nil, logger.Discard())
	env := &testEnv{keys: memory.NewAPIKeyStore()}
	env.h = New(Config{
		Attendance: service.NewAttendanceService(memory.New(), memory.NewAuditLog(), zones, cfg, logger.Discard()),
		Auth:       service.NewAuthService(env.keys, nil, logger.Discard()),
		Zones: ZoneReloaderFunc(func(context.Context) (int, error) {
			env.reloads++
			zones.InvalidateAll()
			return 1, nil
		}),
		Readiness: map[string]ReadinessCheck{
			"storage": func(context.Context) error { return nil },
		},
		RetryAfter: 3 * time.Second,
		Logger:     logger.Discard(),
	})
	return env
}

func (env *testEnv) do(t *testing.T, key *domain.APIKey, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	ctx := logger.WithRequestID(req.Context(), "req-test")
	if key != nil {
		ctx = WithAPIKey(ctx, key)
	}
	rec := httptest.NewRecorder()
	env.h.ServeHTTP(rec, req.WithContext(ctx))
	return rec
}

type envelope struct {
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
	Details   any             `json:"details"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, rec.Body.String())
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
	return env
}

func eventBody(cid, typ string, lat, lng, acc float64, at time.Time) map[string]any {
	return map[string]any{
		"employeeId":      "emp-1",
		"clientEventId":   cid,
		"type":            typ,
		"lat":             lat,
		"lng":             lng,
		"accuracyMeters":  acc,
		"deviceTimestamp": at.UTC().Format(time.RFC3339Nano),
		"deviceId":        "pixel-7",
	}
}

// sameDayTimes returns two recent instants, in order, on the same UTC day.
func sameDayTimes() (time.Time, time.Time) {
	now := time.Now().UTC()
	start := now.Truncate(24 * time.Hour)
	first := now.Add(-10 * time.Minute)
	if first.Before(start) {
		first = start
	}
	return first, first.Add(now.Sub(first) / 2)
}

func TestHandler_SubmitEvent(t *testing.T) {
	at := time.Now().Add(-time.Minute)

	tests := []struct {
		name     string
		key      *domain.APIKey
		body     any
		status   int
		code     string
		decision domain.Decision
	}{
		{"accepted at office", deviceKey, eventBody("c-1", "CheckIn", officeLat, officeLng, 10, at), http.StatusOK, "OK", domain.DecisionAccepted},
		{"outside zone", deviceKey, eventBody("c-1", "CheckIn", officeLat+0.05, officeLng, 10, at), http.StatusOK, "OK", domain.DecisionRejectedOutsideZone},
		{"latitude out of range", deviceKey, eventBody("c-1", "CheckIn", 91, officeLng, 10, at), http.StatusBadRequest, "GA-GEO-4001", ""},
		{"missing coordinates", deviceKey, map[string]any{"employeeId": "emp-1", "clientEventId": "c-1", "type": "CheckIn"}, http.StatusBadRequest, "GA-GEO-4001", ""},
		{"unknown field", deviceKey, `{"employeeId":"emp-1","bogus":1}`, http.StatusBadRequest, "GA-SYS-4000", ""},
		{"tenant mismatch", deviceKey, func() map[string]any {
			b := eventBody("c-1", "CheckIn", officeLat, officeLng, 10, at)
			b["tenantId"] = "globex"
			return b
		}(), http.StatusUnauthorized, "GA-AUTH-4013", ""},
		{"metrics key cannot submit", &domain.APIKey{KeyID: "gaak-m", Role: domain.RoleMetrics, Status: domain.KeyStatusActive},
			eventBody("c-1", "CheckIn", officeLat, officeLng, 10, at), http.StatusForbidden, "GA-AUTH-4030", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			rec := env.do(t, tt.key, http.MethodPost, "/v1/attendance/events", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
			var result domain.ValidationResult
			resp := decode(t, rec, &result)
			if resp.Code != tt.code {
				t.Errorf("code = %s, want %s", resp.Code, tt.code)
			}
			if resp.RequestID != "req-test" {
				t.Errorf("request_id = %q, want req-test", resp.RequestID)
			}
			if tt.decision != "" && result.Decision != tt.decision {
				t.Errorf("decision = %s, want %s", result.Decision, tt.decision)
			}
			if rec.Code != http.StatusOK && rec.Header().Get("X-Error-Code") != tt.code {
				t.Errorf("X-Error-Code = %q, want %q", rec.Header().Get("X-Error-Code"), tt.code)
			}
		})
	}
}

func TestHandler_SubmitEvent_ResultShape(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, deviceKey, http.MethodPost, "/v1/attendance/events",
		eventBody("c-1", "CheckIn", officeLat+0.05, officeLng, 10, time.Now().Add(-time.Minute)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var data map[string]any
	decode(t, rec, &data)
	for _, field := range []string{"eventId", "decision", "distanceMeters", "matchedZoneId", "confidence", "flags", "sessionState"} {
		if _, ok := data[field]; !ok {
			t.Errorf("result is missing %q: %v", field, data)
		}
	}
	if data["matchedZoneId"] != nil {
		t.Errorf("matchedZoneId = %v, want null", data["matchedZoneId"])
	}
}

func TestHandler_SubmitEvent_IdempotentReplay(t *testing.T) {
	env := newTestEnv(t, nil)
	body := eventBody("c-1", "CheckIn", officeLat, officeLng, 10, time.Now().Add(-time.Minute))

	first := env.do(t, deviceKey, http.MethodPost, "/v1/attendance/events", body)
	second := env.do(t, deviceKey, http.MethodPost, "/v1/attendance/events", body)

	a := decode(t, first, nil)
	b := decode(t, second, nil)
	if !bytes.Equal(a.Data, b.Data) {
		t.Errorf("replay differs:\n%s\n%s", a.Data, b.Data)
	}
}

func TestHandler_SubmitEvent_ZonesUnavailable(t *testing.T) {
	env := newTestEnv(t, failingZoneSource{})
	rec := env.do(t, deviceKey, http.MethodPost, "/v1/attendance/events",
		eventBody("c-1", "CheckIn", officeLat, officeLng, 10, time.Now().Add(-time.Minute)))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 (body %s)", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Retry-After"); got != "3" {
		t.Errorf("Retry-After = %q, want 3", got)
	}
}

func TestHandler_SubmitBatch(t *testing.T) {
	env := newTestEnv(t, nil)
	inAt, outAt := sameDayTimes()

	in := eventBody("c-1", "CheckIn", officeLat, officeLng, 10, inAt)
	out := eventBody("c-2", "CheckOut", officeLat, officeLng, 10, outAt)
	bad := eventBody("c-3", "CheckIn", 0, 0, 10, inAt)
	delete(bad, "lat")

	rec := env.do(t, deviceKey, http.MethodPost, "/v1/attendance/events/batch",
		map[string]any{"events": []any{out, bad, in}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}

	var resp BatchResponse
	decode(t, rec, &resp)
	if len(resp.Items) != 3 {
		t.Fatalf("items = %d, want 3", len(resp.Items))
	}
	if resp.Items[1].Error == nil || resp.Items[1].Error.Code != "GA-GEO-4001" {
		t.Errorf("item 1 error = %+v, want GA-GEO-4001", resp.Items[1].Error)
	}
	// Applied in device-time order, so the check-out follows the check-in.
	if r := resp.Items[0].Result; r == nil || r.Decision != domain.DecisionAccepted {
		t.Errorf("check-out result = %+v, want Accepted", r)
	}
	if resp.Accepted != 2 || resp.Failed != 1 {
		t.Errorf("accepted=%d failed=%d, want 2 and 1", resp.Accepted, resp.Failed)
	}
}

func TestHandler_SubmitBatch_Empty(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, deviceKey, http.MethodPost, "/v1/attendance/events/batch", map[string]any{"events": []any{}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandler_OverrideAndReview(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, deviceKey, http.MethodPost, "/v1/attendance/events",
		eventBody("c-1", "CheckIn", officeLat+0.05, officeLng, 10, time.Now().Add(-time.Minute)))
	var result domain.ValidationResult
	decode(t, rec, &result)

	// Devices cannot review.
	if rec := env.do(t, deviceKey, http.MethodGet, "/v1/attendance/review", nil); rec.Code != http.StatusForbidden {
		t.Errorf("device review status = %d, want 403", rec.Code)
	}

	rec = env.do(t, hrKey, http.MethodGet, "/v1/attendance/review?limit=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("review status = %d (body %s)", rec.Code, rec.Body.String())
	}
	var review ReviewResponse
	decode(t, rec, &review)
	if review.Total != 1 || review.Items[0].EventID != result.EventID {
		t.Fatalf("review = %+v, want event %s", review, result.EventID)
	}

	rec = env.do(t, hrKey, http.MethodPost, "/v1/attendance/events/"+result.EventID+"/override",
		map[string]string{"reason": "visiting client site"})
	if rec.Code != http.StatusOK {
		t.Fatalf("override status = %d (body %s)", rec.Code, rec.Body.String())
	}
	var overridden domain.ValidationResult
	decode(t, rec, &overridden)
	if overridden.Decision != domain.DecisionAccepted || !overridden.Flags.Has(domain.FlagAdminOverride) {
		t.Errorf("override result = %+v", overridden)
	}

	rec = env.do(t, hrKey, http.MethodGet, "/v1/attendance/events/"+result.EventID, nil)
	var stored AuditRecordResponse
	decode(t, rec, &stored)
	if stored.Kind != string(domain.AuditOverride) || stored.Reason != "visiting client site" {
		t.Errorf("stored record = %+v", stored)
	}
}

func TestHandler_Override_Validation(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, hrKey, http.MethodPost, "/v1/attendance/events/not-an-id/override", map[string]string{"reason": "x"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", rec.Code)
	}

	id, _ := domain.GenerateEventID()
	rec = env.do(t, hrKey, http.MethodPost, "/v1/attendance/events/"+id+"/override", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing reason status = %d, want 400", rec.Code)
	}

	rec = env.do(t, hrKey, http.MethodPost, "/v1/attendance/events/"+id+"/override", map[string]string{"reason": "x"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown event status = %d, want 404", rec.Code)
	}
}

func TestHandler_GetSessions(t *testing.T) {
	env := newTestEnv(t, nil)
	at, _ := sameDayTimes()
	env.do(t, deviceKey, http.MethodPost, "/v1/attendance/events", eventBody("c-1", "CheckIn", officeLat, officeLng, 10, at))

	date := at.Format(domain.CalendarDateLayout)
	rec := env.do(t, deviceKey, http.MethodGet, "/v1/attendance/sessions/emp-1?date="+date, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", rec.Code, rec.Body.String())
	}
	var s SessionResponse
	decode(t, rec, &s)
	if s.State != string(domain.SessionOpen) || s.CheckInEventID == "" || s.OpenedAt == nil {
		t.Errorf("session = %+v", s)
	}

	rec = env.do(t, deviceKey, http.MethodGet, "/v1/attendance/sessions/emp-2?date="+date, nil)
	decode(t, rec, &s)
	if s.State != string(domain.SessionNotStarted) {
		t.Errorf("untouched day state = %s, want NotStarted", s.State)
	}

	rec = env.do(t, deviceKey, http.MethodGet, "/v1/attendance/sessions/emp-1?from="+date+"&to="+date, nil)
	var list ListSessionsResponse
	decode(t, rec, &list)
	if list.Total != 1 {
		t.Errorf("range total = %d, want 1", list.Total)
	}

	if rec := env.do(t, deviceKey, http.MethodGet, "/v1/attendance/sessions/emp-1", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("no date status = %d, want 400", rec.Code)
	}
}

func TestHandler_APIKeys(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, adminKey, http.MethodPost, "/admin/v1/keys", map[string]any{
		"name": "kiosk", "role": "device", "tenantId": "acme",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d (body %s)", rec.Code, rec.Body.String())
	}
	var created CreateAPIKeyResponse
	decode(t, rec, &created)
	if !domain.IsValidAPIKeyID(created.KeyID) || created.Secret == "" {
		t.Errorf("created = %+v", created)
	}

	rec = env.do(t, adminKey, http.MethodPost, "/admin/v1/keys", map[string]any{"name": "x", "role": "root"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid role status = %d, want 400", rec.Code)
	}

	rec = env.do(t, adminKey, http.MethodGet, "/admin/v1/keys?tenantId=acme", nil)
	var list ListAPIKeysResponse
	decode(t, rec, &list)
	if len(list.Keys) != 1 || list.Keys[0].KeyID != created.KeyID {
		t.Fatalf("list = %+v", list)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte(created.Secret)) {
		t.Error("list leaked the secret")
	}

	rec = env.do(t, adminKey, http.MethodPost, "/admin/v1/keys/"+created.KeyID+"/status", map[string]bool{"enabled": false})
	if rec.Code != http.StatusOK {
		t.Fatalf("status update = %d (body %s)", rec.Code, rec.Body.String())
	}
	key, _ := env.keys.Get(context.Background(), created.KeyID)
	if key.Status != domain.KeyStatusDisabled {
		t.Errorf("status = %s, want disabled", key.Status)
	}
}

func TestHandler_ReloadZones(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, adminKey, http.MethodPost, "/admin/v1/zones/reload", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if env.reloads != 1 {
		t.Errorf("reloads = %d, want 1", env.reloads)
	}

	env.h.zones = ZoneReloaderFunc(func(context.Context) (int, error) {
		return 0, errors.New("line 3: duplicate zone")
	})
	rec = env.do(t, adminKey, http.MethodPost, "/admin/v1/zones/reload", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("failed reload status = %d, want 400", rec.Code)
	}

	env.h.zones = nil
	rec = env.do(t, adminKey, http.MethodPost, "/admin/v1/zones/reload", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unconfigured reload status = %d, want 503", rec.Code)
	}
}

func TestHandler_HealthAndReady(t *testing.T) {
	env := newTestEnv(t, nil)
	if rec := env.do(t, nil, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Errorf("health = %d", rec.Code)
	}
	if rec := env.do(t, nil, http.MethodGet, "/ready", nil); rec.Code != http.StatusOK {
		t.Errorf("ready = %d", rec.Code)
	}

	env.h.readiness["audit"] = func(context.Context) error { return errors.New("disk full") }
	rec := env.do(t, nil, http.MethodGet, "/ready", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready with failing check = %d, want 503", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

func TestStatusForCode(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{"GA-AUTH-4010", http.StatusUnauthorized},
		{"GA-AUTH-4013", http.StatusUnauthorized},
		{"GA-AUTH-4016", http.StatusUnauthorized},
		{"GA-AUTH-4030", http.StatusForbidden},
		{"GA-ADMIN-4031", http.StatusForbidden},
		{"GA-AUTH-4001", http.StatusBadRequest},
		{"GA-GEO-4001", http.StatusBadRequest},
		{"GA-EVNT-4003", http.StatusBadRequest},
		{"GA-SYS-4000", http.StatusBadRequest},
		{"GA-ARG-1001", http.StatusBadRequest},
		{"GA-EVNT-4040", http.StatusNotFound},
		{"GA-SESS-4041", http.StatusNotFound},
		{"GA-EVNT-4090", http.StatusConflict},
		{"GA-SESS-4091", http.StatusConflict},
		{"GA-SYS-4290", http.StatusTooManyRequests},
		{"GA-SYS-5001", http.StatusServiceUnavailable},
		{"GA-SYS-5031", http.StatusServiceUnavailable},
		{"GA-SYS-5040", http.StatusServiceUnavailable},
		{"GA-SYS-5000", http.StatusInternalServerError},
		{"", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusForCode(tt.code); got != tt.want {
			t.Errorf("StatusForCode(%q) = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestWriteDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		status     int
		retryAfter string
	}{
		{"storage", domain.ErrStorageError.WithCause(errors.New("io")), http.StatusServiceUnavailable, "2"},
		{"conflict is retryable", domain.ErrSessionVersionConflict, http.StatusConflict, "2"},
		{"not found", domain.ErrEventNotFound, http.StatusNotFound, ""},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteDomainError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err, 1500*time.Millisecond)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if got := rec.Header().Get("Retry-After"); got != tt.retryAfter {
				t.Errorf("Retry-After = %q, want %q", got, tt.retryAfter)
			}
		})
	}
}
