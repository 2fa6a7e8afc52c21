package zonefile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yndnr/geoattend-go/internal/core/domain"
	"github.com/yndnr/geoattend-go/internal/infra/confloader"
)

const validFile = `
tenants:
  - tenant_id: acme
    policy:
      enforcement_mode: advisory
      timezone: Europe/Berlin
      accuracy_cap_meters: 80
      override_secret: s3cret
    zones:
      - zone_id: warehouse
        label: Warehouse
        center_lat: 52.51
        center_lng: 13.39
        radius_meters: 200
        active_from: 2024-01-01T00:00:00Z
        active_to: 2030-01-01T00:00:00Z
      - zone_id: hq
        center_lat: 52.52
        center_lng: 13.405
        radius_meters: 100
  - tenant_id: globex
    zones: []
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.yaml")
	writeFile(t, path, validFile)

	s, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if got := s.Tenants(); len(got) != 2 || got[0] != "acme" || got[1] != "globex" {
		t.Errorf("Tenants() = %v", got)
	}

	cfg, err := s.LoadTenant(context.Background(), "acme")
	if err != nil {
		t.Fatalf("LoadTenant() error = %v", err)
	}
	if cfg.Policy.EnforcementMode != domain.EnforcementAdvisory {
		t.Errorf("EnforcementMode = %s, want Advisory", cfg.Policy.EnforcementMode)
	}
	if cfg.Policy.AccuracyCapMeters != 80 || cfg.Policy.OverrideSecret != "s3cret" {
		t.Errorf("policy = %+v", cfg.Policy)
	}
	if len(cfg.Zones) != 2 {
		t.Fatalf("zones = %d, want 2", len(cfg.Zones))
	}

	wh := cfg.Zones[0]
	if wh.ZoneID != "warehouse" || wh.TenantID != "acme" || wh.RadiusMeters != 200 {
		t.Errorf("zone = %+v", wh)
	}
	wantFrom := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !wh.ActiveFrom.Equal(wantFrom) {
		t.Errorf("ActiveFrom = %v, want %v", wh.ActiveFrom, wantFrom)
	}
	if !cfg.Zones[1].ActiveFrom.IsZero() {
		t.Errorf("hq ActiveFrom = %v, want zero", cfg.Zones[1].ActiveFrom)
	}

	// Returned configs are copies.
	cfg.Zones[0].RadiusMeters = 1
	again, _ := s.LoadTenant(context.Background(), "acme")
	if again.Zones[0].RadiusMeters != 200 {
		t.Error("LoadTenant() returned shared state")
	}
}

func TestLoadTenant_Unknown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.yaml")
	writeFile(t, path, validFile)
	s, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}

	cfg, err := s.LoadTenant(context.Background(), "initech")
	if err != nil {
		t.Fatalf("LoadTenant() error = %v", err)
	}
	if cfg.TenantID != "initech" || len(cfg.Zones) != 0 {
		t.Errorf("cfg = %+v, want empty", cfg)
	}
}

func TestOpen_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing tenant id", "tenants:\n  - zones: []\n"},
		{"duplicate tenant", "tenants:\n  - tenant_id: a\n  - tenant_id: a\n"},
		{"zero radius", "tenants:\n  - tenant_id: a\n    zones:\n      - zone_id: z\n        center_lat: 1\n        center_lng: 1\n        radius_meters: 0\n"},
		{"bad latitude", "tenants:\n  - tenant_id: a\n    zones:\n      - zone_id: z\n        center_lat: 91\n        center_lng: 1\n        radius_meters: 10\n"},
		{"duplicate zone", "tenants:\n  - tenant_id: a\n    zones:\n      - {zone_id: z, center_lat: 1, center_lng: 1, radius_meters: 10}\n      - {zone_id: z, center_lat: 2, center_lng: 2, radius_meters: 10}\n"},
		{"bad mode", "tenants:\n  - tenant_id: a\n    policy:\n      enforcement_mode: lenient\n"},
		{"bad timezone", "tenants:\n  - tenant_id: a\n    policy:\n      timezone: Mars/Olympus\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "zones.yaml")
			writeFile(t, path, tt.content)
			_, err := Open(path, nil)
			if !errors.Is(err, domain.ErrZoneValidation) {
				t.Errorf("Open() error = %v, want ErrZoneValidation", err)
			}
		})
	}
}

func TestOpen_Unreadable(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "zones.yaml")
	writeFile(t, path, "tenants: [unclosed")
	if _, err := Open(path, nil); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestReload_KeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.yaml")
	writeFile(t, path, validFile)
	s, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}

	writeFile(t, path, "tenants:\n  - tenant_id: acme\n    zones:\n      - {zone_id: z, center_lat: 1, center_lng: 1, radius_meters: -5}\n")
	if err := s.Reload(); err == nil {
		t.Fatal("Reload() expected error")
	}

	cfg, _ := s.LoadTenant(context.Background(), "acme")
	if len(cfg.Zones) != 2 {
		t.Errorf("zones = %d after rejected reload, want 2", len(cfg.Zones))
	}
}

func TestWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.yaml")
	writeFile(t, path, validFile)
	s, err := Open(path, nil)
	if err != nil {
		t.Fatal(err)
	}

	w, err := confloader.NewWatcher(confloader.WithDebounce(20 * time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	var reloads atomic.Int32
	if err := s.Watch(w, func() { reloads.Add(1) }); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	w.StartAsync()
	time.Sleep(50 * time.Millisecond)

	writeFile(t, path, "tenants:\n  - tenant_id: acme\n    zones:\n      - {zone_id: only, center_lat: 1, center_lng: 1, radius_meters: 10}\n")

	reloaded := func() bool {
		cfg, _ := s.LoadTenant(context.Background(), "acme")
		return reloads.Load() > 0 && len(cfg.Zones) == 1 && cfg.Zones[0].ZoneID == "only"
	}
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && !reloaded() {
		time.Sleep(20 * time.Millisecond)
	}
	if !reloaded() {
		t.Fatalf("zone file change not applied, reloads = %d", reloads.Load())
	}
	if got := s.Tenants(); len(got) != 1 {
		t.Errorf("Tenants() = %v, want [acme]", got)
	}
}
