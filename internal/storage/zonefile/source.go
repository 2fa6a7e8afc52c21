package zonefile

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/yndnr/geoattend-go/internal/core/domain"
	"github.com/yndnr/geoattend-go/internal/core/service"
	"github.com/yndnr/geoattend-go/internal/infra/confloader"
)

var _ service.ZoneSource = (*Source)(nil)

type fileSpec struct {
	Tenants []tenantSpec `koanf:"tenants"`
}

type tenantSpec struct {
	TenantID string     `koanf:"tenant_id"`
	Policy   policySpec `koanf:"policy"`
	Zones    []zoneSpec `koanf:"zones"`
}

type policySpec struct {
	EnforcementMode       string  `koanf:"enforcement_mode"`
	Timezone              string  `koanf:"timezone"`
	AccuracyCapMeters     float64 `koanf:"accuracy_cap_meters"`
	AccuracyCeilingMeters float64 `koanf:"accuracy_ceiling_meters"`
	AccuracyWarnMeters    float64 `koanf:"accuracy_warn_meters"`
	MaxSpeedKmh           float64 `koanf:"max_speed_kmh"`
	AllowMockLocation     bool    `koanf:"allow_mock_location"`
	OverrideSecret        string  `koanf:"override_secret"`
}

type zoneSpec struct {
	ZoneID       string    `koanf:"zone_id"`
	Label        string    `koanf:"label"`
	CenterLat    float64   `koanf:"center_lat"`
	CenterLng    float64   `koanf:"center_lng"`
	RadiusMeters float64   `koanf:"radius_meters"`
	ActiveFrom   time.Time `koanf:"active_from"`
	ActiveTo     time.Time `koanf:"active_to"`
}

// Source is a service.ZoneSource reading a YAML zone file.
type Source struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	tenants  map[string]*domain.TenantConfig
	loadedAt time.Time
}

// Open loads path and returns a Source over it.
func Open(path string, logger *slog.Logger) (*Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("zonefile: resolve %s: %w", path, err)
	}
	s := &Source{
		path:   abs,
		logger: logger.With("component", "zonefile"),
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the absolute path of the zone file.
func (s *Source) Path() string {
	return s.path
}

// Reload parses the file and swaps in the new snapshot.
func (s *Source) Reload() error {
	tenants, err := parseFile(s.path)
	if err != nil {
		return err
	}

	zones := 0
	for _, t := range tenants {
		zones += len(t.Zones)
	}

	s.mu.Lock()
	s.tenants = tenants
	s.loadedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("zone file loaded", "path", s.path, "tenants", len(tenants), "zones", zones)
	return nil
}

// LoadTenant returns a copy of the tenant's configuration. Unknown tenants
// get an empty configuration.
func (s *Source) LoadTenant(_ context.Context, tenantID string) (*domain.TenantConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if cfg, ok := s.tenants[tenantID]; ok {
		return cfg.Clone(), nil
	}
	return &domain.TenantConfig{TenantID: tenantID}, nil
}

// Tenants returns the configured tenant IDs in order.
func (s *Source) Tenants() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.tenants))
	for id := range s.tenants {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// LoadedAt returns when the current snapshot was loaded.
func (s *Source) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// Watch reloads the source whenever w reports a change to the file, then
// calls onReload. Failed reloads are logged and leave the snapshot as is.
func (s *Source) Watch(w *confloader.Watcher, onReload func()) error {
	if err := w.Watch(s.path); err != nil {
		return fmt.Errorf("zonefile: watch %s: %w", s.path, err)
	}
	w.OnChange(func(path string) {
		if path != s.path {
			return
		}
		if err := s.Reload(); err != nil {
			s.logger.Error("zone file reload rejected", "path", path, "error", err)
			return
		}
		if onReload != nil {
			onReload()
		}
	})
	return nil
}

func parseFile(path string) (map[string]*domain.TenantConfig, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("zonefile: load %s: %w", path, err)
	}
	var spec fileSpec
	if err := k.UnmarshalWithConf("", &spec, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("zonefile: decode %s: %w", path, err)
	}
	return buildTenants(spec)
}

func buildTenants(spec fileSpec) (map[string]*domain.TenantConfig, error) {
	out := make(map[string]*domain.TenantConfig, len(spec.Tenants))
	for i, ts := range spec.Tenants {
		if !domain.IsValidIdentifier(ts.TenantID, domain.MaxTenantIDLength) {
			return nil, domain.ErrZoneValidation.WithDetails(fmt.Sprintf("tenants[%d]: invalid tenant_id %q", i, ts.TenantID))
		}
		if _, dup := out[ts.TenantID]; dup {
			return nil, domain.ErrZoneValidation.WithDetails("duplicate tenant " + ts.TenantID)
		}

		cfg := &domain.TenantConfig{
			TenantID: ts.TenantID,
			Policy:   ts.Policy.toDomain(),
			Zones:    make([]*domain.Zone, 0, len(ts.Zones)),
		}
		if err := cfg.Policy.Validate(); err != nil {
			return nil, fmt.Errorf("tenant %s: %w", ts.TenantID, err)
		}

		seen := make(map[string]struct{}, len(ts.Zones))
		for _, zs := range ts.Zones {
			z := zs.toDomain(ts.TenantID)
			if err := z.Validate(); err != nil {
				return nil, fmt.Errorf("tenant %s: %w", ts.TenantID, err)
			}
			if _, dup := seen[z.ZoneID]; dup {
				return nil, domain.ErrZoneValidation.WithDetails(fmt.Sprintf("tenant %s: duplicate zone %s", ts.TenantID, z.ZoneID))
			}
			seen[z.ZoneID] = struct{}{}
			cfg.Zones = append(cfg.Zones, z)
		}
		out[ts.TenantID] = cfg
	}
	return out, nil
}

func (p policySpec) toDomain() domain.TenantPolicy {
	mode := domain.EnforcementMode(p.EnforcementMode)
	if parsed, ok := domain.ParseEnforcementMode(p.EnforcementMode); ok {
		mode = parsed
	}
	return domain.TenantPolicy{
		EnforcementMode:       mode,
		Timezone:              p.Timezone,
		AccuracyCapMeters:     p.AccuracyCapMeters,
		AccuracyCeilingMeters: p.AccuracyCeilingMeters,
		AccuracyWarnMeters:    p.AccuracyWarnMeters,
		MaxSpeedKmh:           p.MaxSpeedKmh,
		AllowMockLocation:     p.AllowMockLocation,
		OverrideSecret:        p.OverrideSecret,
	}
}

func (z zoneSpec) toDomain(tenantID string) *domain.Zone {
	return &domain.Zone{
		TenantID:     tenantID,
		ZoneID:       z.ZoneID,
		Label:        z.Label,
		CenterLat:    z.CenterLat,
		CenterLng:    z.CenterLng,
		RadiusMeters: z.RadiusMeters,
		ActiveFrom:   z.ActiveFrom,
		ActiveTo:     z.ActiveTo,
	}
}
