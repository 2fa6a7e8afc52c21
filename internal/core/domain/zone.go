package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/yndnr/geoattend-go/pkg/geo"
)

// EnforcementMode controls how a tenant treats soft violations.
type EnforcementMode string

const (
	// EnforcementStrict rejects events that cannot be positively placed in a zone.
	EnforcementStrict EnforcementMode = "Strict"

	// EnforcementAdvisory accepts such events and flags them for review.
	EnforcementAdvisory EnforcementMode = "Advisory"
)

// ParseEnforcementMode accepts the canonical names case-insensitively.
func ParseEnforcementMode(s string) (EnforcementMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict":
		return EnforcementStrict, true
	case "advisory":
		return EnforcementAdvisory, true
	}
	return "", false
}

// Policy defaults applied when a tenant leaves a threshold unset.
const (
	DefaultAccuracyCapMeters     = 150.0
	DefaultAccuracyCeilingMeters = 500.0
	DefaultAccuracyWarnMeters    = 100.0
	DefaultMaxSpeedKmh           = 300.0
	DefaultTimezone              = "UTC"
)

// Zone is a tenant-defined circular geofence.
type Zone struct {
	TenantID     string    `json:"tenant_id"`
	ZoneID       string    `json:"zone_id"`
	Label        string    `json:"label,omitempty"`
	CenterLat    float64   `json:"center_lat"`
	CenterLng    float64   `json:"center_lng"`
	RadiusMeters float64   `json:"radius_meters"`
	ActiveFrom   time.Time `json:"active_from,omitzero"`
	ActiveTo     time.Time `json:"active_to,omitzero"`
}

// Center returns the zone center as a geo.Point.
func (z *Zone) Center() geo.Point {
	return geo.Point{Lat: z.CenterLat, Lng: z.CenterLng}
}

// IsActiveAt reports whether the zone's schedule covers t. Zero bounds are open.
func (z *Zone) IsActiveAt(t time.Time) bool {
	if !z.ActiveFrom.IsZero() && t.Before(z.ActiveFrom) {
		return false
	}
	if !z.ActiveTo.IsZero() && !t.Before(z.ActiveTo) {
		return false
	}
	return true
}

// Validate checks the zone invariants.
func (z *Zone) Validate() error {
	var violations []string
	if z.ZoneID == "" {
		violations = append(violations, "zone_id is required")
	}
	if v := identifierViolation("tenant_id", z.TenantID, MaxTenantIDLength); v != "" {
		violations = append(violations, v)
	}
	if err := geo.ValidateCoordinate(z.CenterLat, z.CenterLng); err != nil {
		violations = append(violations, "center out of range")
	}
	if !(z.RadiusMeters > 0) {
		violations = append(violations, "radius_meters must be positive")
	}
	if !z.ActiveFrom.IsZero() && !z.ActiveTo.IsZero() && !z.ActiveTo.After(z.ActiveFrom) {
		violations = append(violations, "active_to must be after active_from")
	}
	if len(violations) > 0 {
		return ErrZoneValidation.WithDetails(z.ZoneID + ": " + strings.Join(violations, "; "))
	}
	return nil
}

// Clone creates a copy of the zone.
func (z *Zone) Clone() *Zone {
	c := *z
	return &c
}

// TenantPolicy holds per-tenant enforcement settings. Zero thresholds mean
// "use the default"; call WithDefaults before reading them.
type TenantPolicy struct {
	EnforcementMode       EnforcementMode `json:"enforcement_mode"`
	Timezone              string          `json:"timezone"`
	AccuracyCapMeters     float64         `json:"accuracy_cap_meters"`
	AccuracyCeilingMeters float64         `json:"accuracy_ceiling_meters"`
	AccuracyWarnMeters    float64         `json:"accuracy_warn_meters"`
	MaxSpeedKmh           float64         `json:"max_speed_kmh"`
	AllowMockLocation     bool            `json:"allow_mock_location"`

	// OverrideSecret signs admin override tokens. Never serialized.
	OverrideSecret string `json:"-"`
}

// WithDefaults returns a copy of p with unset fields taken from base, and
// any fields still unset taken from the package defaults.
func (p TenantPolicy) WithDefaults(base TenantPolicy) TenantPolicy {
	out := p
	if out.EnforcementMode == "" {
		out.EnforcementMode = base.EnforcementMode
	}
	if out.EnforcementMode == "" {
		out.EnforcementMode = EnforcementStrict
	}
	if out.Timezone == "" {
		out.Timezone = base.Timezone
	}
	if out.Timezone == "" {
		out.Timezone = DefaultTimezone
	}
	out.AccuracyCapMeters = firstPositive(out.AccuracyCapMeters, base.AccuracyCapMeters, DefaultAccuracyCapMeters)
	out.AccuracyCeilingMeters = firstPositive(out.AccuracyCeilingMeters, base.AccuracyCeilingMeters, DefaultAccuracyCeilingMeters)
	out.AccuracyWarnMeters = firstPositive(out.AccuracyWarnMeters, base.AccuracyWarnMeters, DefaultAccuracyWarnMeters)
	out.MaxSpeedKmh = firstPositive(out.MaxSpeedKmh, base.MaxSpeedKmh, DefaultMaxSpeedKmh)
	if out.OverrideSecret == "" {
		out.OverrideSecret = base.OverrideSecret
	}
	return out
}

// Location loads the policy timezone, falling back to UTC.
func (p TenantPolicy) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate checks policy values.
func (p TenantPolicy) Validate() error {
	var violations []string
	if p.EnforcementMode != "" {
		if _, ok := ParseEnforcementMode(string(p.EnforcementMode)); !ok {
			violations = append(violations, "invalid enforcement_mode")
		}
	}
	if p.Timezone != "" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			violations = append(violations, "unknown timezone "+p.Timezone)
		}
	}
	if p.AccuracyCapMeters < 0 || p.AccuracyCeilingMeters < 0 || p.AccuracyWarnMeters < 0 || p.MaxSpeedKmh < 0 {
		violations = append(violations, "thresholds must not be negative")
	}
	if len(violations) > 0 {
		return ErrZoneValidation.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// TenantConfig is everything the engine reads about a tenant.
type TenantConfig struct {
	TenantID string       `json:"tenant_id"`
	Policy   TenantPolicy `json:"policy"`
	Zones    []*Zone      `json:"zones"`
}

// ActiveZones returns the zones active at t, ordered by ZoneID.
func (c *TenantConfig) ActiveZones(t time.Time) []*Zone {
	out := make([]*Zone, 0, len(c.Zones))
	for _, z := range c.Zones {
		if z.IsActiveAt(t) {
			out = append(out, z)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ZoneID < out[j].ZoneID })
	return out
}

// Clone creates a deep copy of the config.
func (c *TenantConfig) Clone() *TenantConfig {
	out := &TenantConfig{TenantID: c.TenantID, Policy: c.Policy}
	out.Zones = make([]*Zone, len(c.Zones))
	for i, z := range c.Zones {
		out.Zones[i] = z.Clone()
	}
	return out
}

func firstPositive(vals ...float64) float64 {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
