package service

import (
	"math"
	"testing"
	"time"

	"github.com/yndnr/geoattend-go/internal/core/domain"
	"github.com/yndnr/geoattend-go/pkg/geo"
)

func bangaloreZone() *domain.Zone {
	return &domain.Zone{
		TenantID:     "acme",
		ZoneID:       "blr-hq",
		CenterLat:    bangalore.Lat,
		CenterLng:    bangalore.Lng,
		RadiusMeters: 100,
	}
}

func eventAt(p geo.Point, acc float64) *domain.AttendanceEvent {
	return &domain.AttendanceEvent{
		TenantID:        "acme",
		EmployeeID:      "emp-1",
		Type:            domain.EventCheckIn,
		Lat:             p.Lat,
		Lng:             p.Lng,
		AccuracyMeters:  acc,
		DeviceTimestamp: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

func TestMatchZone(t *testing.T) {
	a := &domain.Zone{ZoneID: "a", CenterLat: bangalore.Lat, CenterLng: bangalore.Lng, RadiusMeters: 100}
	far := geo.Offset(bangalore, 90, 1000)
	b := &domain.Zone{ZoneID: "b", CenterLat: far.Lat, CenterLng: far.Lng, RadiusMeters: 100}
	// Same geometry as a, so ties go to the smaller ID.
	c := &domain.Zone{ZoneID: "c", CenterLat: bangalore.Lat, CenterLng: bangalore.Lng, RadiusMeters: 100}

	t.Run("empty", func(t *testing.T) {
		if _, ok := MatchZone(bangalore, 10, 150, nil); ok {
			t.Error("MatchZone(nil) should report no match")
		}
	})

	t.Run("closest wins", func(t *testing.T) {
		p := geo.Offset(bangalore, 90, 900)
		m, ok := MatchZone(p, 10, 150, []*domain.Zone{a, b})
		if !ok || m.Zone.ZoneID != "b" {
			t.Fatalf("matched %v, want b", m.Zone)
		}
		if !m.Within {
			t.Error("point 100 m from b should be within")
		}
	})

	t.Run("tie breaks on zone id", func(t *testing.T) {
		m, _ := MatchZone(bangalore, 10, 150, []*domain.Zone{c, a})
		if m.Zone.ZoneID != "a" {
			t.Errorf("matched %s, want a", m.Zone.ZoneID)
		}
	})

	t.Run("accuracy buffer is capped", func(t *testing.T) {
		p := geo.Offset(bangalore, 0, 260)
		m, _ := MatchZone(p, 400, 150, []*domain.Zone{a})
		if m.EffectiveRadius != 250 {
			t.Errorf("EffectiveRadius = %v, want 250", m.EffectiveRadius)
		}
		if m.Within {
			t.Error("260 m should be outside 100+150")
		}
	})

	t.Run("margin", func(t *testing.T) {
		p := geo.Offset(bangalore, 0, 50)
		m, _ := MatchZone(p, 0, 150, []*domain.Zone{a})
		if math.Abs(m.Margin()+50) > 0.5 {
			t.Errorf("Margin() = %v, want about -50", m.Margin())
		}
	})
}

func TestValidationEngine_Evaluate(t *testing.T) {
	zones := []*domain.Zone{bangaloreZone()}
	strict := &ZoneLookup{TenantID: "acme", Zones: zones, Policy: strictPolicy()}
	advisoryEmpty := &ZoneLookup{TenantID: "acme", Policy: advisoryPolicy()}
	strictEmpty := &ZoneLookup{TenantID: "acme", Policy: strictPolicy()}

	tests := []struct {
		name     string
		event    *domain.AttendanceEvent
		lookup   *ZoneLookup
		override bool
		decision domain.Decision
		flags    []domain.Flag
		matched  bool
	}{
		{
			name:     "at center",
			event:    eventAt(bangalore, 10),
			lookup:   strict,
			decision: domain.DecisionAccepted,
			matched:  true,
		},
		{
			name:     "500 m outside the boundary",
			event:    eventAt(geo.Offset(bangalore, 90, 600), 20),
			lookup:   strict,
			decision: domain.DecisionRejectedOutsideZone,
		},
		{
			name:     "150 m away with 100 m accuracy",
			event:    eventAt(geo.Offset(bangalore, 180, 150), 100),
			lookup:   strict,
			decision: domain.DecisionAccepted,
			flags:    []domain.Flag{domain.FlagAccuracyDegraded},
			matched:  true,
		},
		{
			name:     "inside radius with poor accuracy",
			event:    eventAt(geo.Offset(bangalore, 0, 20), 120),
			lookup:   strict,
			decision: domain.DecisionAccepted,
			flags:    []domain.Flag{domain.FlagAccuracyDegraded},
			matched:  true,
		},
		{
			name:     "accuracy above ceiling",
			event:    eventAt(bangalore, 501),
			lookup:   strict,
			decision: domain.DecisionRejectedLowAccuracy,
		},
		{
			name:     "accuracy at ceiling",
			event:    eventAt(bangalore, 500),
			lookup:   strict,
			decision: domain.DecisionAccepted,
			flags:    []domain.Flag{domain.FlagAccuracyDegraded},
			matched:  true,
		},
		{
			name:     "advisory without zones",
			event:    eventAt(bangalore, 10),
			lookup:   advisoryEmpty,
			decision: domain.DecisionAccepted,
			flags:    []domain.Flag{domain.FlagNoZonesConfigured},
		},
		{
			name:     "strict without zones",
			event:    eventAt(bangalore, 10),
			lookup:   strictEmpty,
			decision: domain.DecisionRejectedOutsideZone,
			flags:    []domain.Flag{domain.FlagNoZonesConfigured},
		},
		{
			name:     "outside with override",
			event:    eventAt(geo.Offset(bangalore, 90, 600), 20),
			lookup:   strict,
			override: true,
			decision: domain.DecisionAccepted,
			flags:    []domain.Flag{domain.FlagAdminOverride},
		},
		{
			name:     "override does not lift the accuracy ceiling",
			event:    eventAt(bangalore, 900),
			lookup:   strict,
			override: true,
			decision: domain.DecisionRejectedLowAccuracy,
		},
	}

	engine := NewValidationEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := engine.Evaluate(tt.event, tt.lookup, tt.override)
			if ev.Decision != tt.decision {
				t.Errorf("Decision = %s, want %s (distance %.1f)", ev.Decision, tt.decision, ev.DistanceMeters)
			}
			if ev.Matched != tt.matched {
				t.Errorf("Matched = %v, want %v", ev.Matched, tt.matched)
			}
			if len(ev.Flags) != len(tt.flags) {
				t.Fatalf("Flags = %v, want %v", ev.Flags, tt.flags)
			}
			for _, f := range tt.flags {
				if !ev.Flags.Has(f) {
					t.Errorf("missing flag %s", f)
				}
			}
		})
	}
}

func TestValidationEngine_DistanceReported(t *testing.T) {
	ev := NewValidationEngine().Evaluate(
		eventAt(geo.Offset(bangalore, 90, 600), 20),
		&ZoneLookup{Zones: []*domain.Zone{bangaloreZone()}, Policy: strictPolicy()},
		false,
	)
	if math.Abs(ev.DistanceMeters-600) > 1 {
		t.Errorf("DistanceMeters = %.2f, want ~600", ev.DistanceMeters)
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		name     string
		accuracy float64
		radius   float64
		flags    domain.Flags
		min, max float64
	}{
		{"perfect fix", 0, 100, nil, 1, 1},
		{"accuracy equals diameter", 200, 100, nil, 0.5, 0.5},
		{"no zone", 10, 0, nil, 0.5, 0.5},
		{"degraded", 100, 100, domain.Flags{domain.FlagAccuracyDegraded}, 0.56, 0.57},
		{"mock", 0, 100, domain.Flags{domain.FlagMockLocationReported}, 0.5, 0.5},
		{"override flag carries no penalty", 0, 100, domain.Flags{domain.FlagAdminOverride}, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Confidence(tt.accuracy, tt.radius, tt.flags)
			if got < tt.min-1e-9 || got > tt.max+1e-9 {
				t.Errorf("Confidence() = %v, want in [%v, %v]", got, tt.min, tt.max)
			}
		})
	}
}
