package service

import (
	"math"

	"github.com/yndnr/geoattend-go/internal/core/domain"
	"github.com/yndnr/geoattend-go/pkg/geo"
)

// ZoneMatch describes the closest zone to a fix.
type ZoneMatch struct {
	Zone            *domain.Zone
	DistanceMeters  float64
	EffectiveRadius float64
	// Within is true when DistanceMeters <= EffectiveRadius.
	Within bool
}

// Margin is how far the fix lies outside the effective radius (negative
// when inside).
func (m ZoneMatch) Margin() float64 {
	return m.DistanceMeters - m.EffectiveRadius
}

// MatchZone returns the zone with the smallest margin for point p with the
// given accuracy. Ties go to the lexicographically smaller ZoneID. The
// accuracy buffer added to each radius is capped at capMeters. Returns
// false if zones is empty.
func MatchZone(p geo.Point, accuracy, capMeters float64, zones []*domain.Zone) (ZoneMatch, bool) {
	buffer := math.Min(accuracy, capMeters)
	var best ZoneMatch
	found := false
	for _, z := range zones {
		d := geo.MustDistance(p, z.Center())
		m := ZoneMatch{
			Zone:            z,
			DistanceMeters:  d,
			EffectiveRadius: z.RadiusMeters + buffer,
		}
		m.Within = m.DistanceMeters <= m.EffectiveRadius
		if !found || m.Margin() < best.Margin() ||
			(m.Margin() == best.Margin() && z.ZoneID < best.Zone.ZoneID) {
			best = m
			found = true
		}
	}
	return best, found
}

// Evaluation is the ValidationEngine's verdict for one event.
type Evaluation struct {
	Decision       domain.Decision
	Match          ZoneMatch
	Matched        bool
	DistanceMeters float64
	Flags          domain.Flags
	Overridden     bool
}

// ValidationEngine decides zone membership under location uncertainty.
type ValidationEngine struct{}

// NewValidationEngine creates a new ValidationEngine.
func NewValidationEngine() *ValidationEngine {
	return &ValidationEngine{}
}

// Evaluate judges e against the zones in lookup. overrideValid reports
// whether e carried a verified admin override token; it only matters when
// the event falls outside every zone.
func (v *ValidationEngine) Evaluate(e *domain.AttendanceEvent, lookup *ZoneLookup, overrideValid bool) *Evaluation {
	policy := lookup.Policy
	out := &Evaluation{Flags: domain.Flags{}}

	match, found := MatchZone(e.Point(), e.AccuracyMeters, policy.AccuracyCapMeters, lookup.Zones)
	if found {
		out.Match = match
		out.DistanceMeters = match.DistanceMeters
	}

	switch {
	case e.AccuracyMeters > policy.AccuracyCeilingMeters:
		out.Decision = domain.DecisionRejectedLowAccuracy

	case !found:
		out.Flags = out.Flags.Add(domain.FlagNoZonesConfigured)
		if policy.EnforcementMode == domain.EnforcementAdvisory {
			out.Decision = domain.DecisionAccepted
		} else {
			out.Decision = domain.DecisionRejectedOutsideZone
		}

	case match.Within:
		out.Decision = domain.DecisionAccepted
		out.Matched = true
		if match.DistanceMeters > match.Zone.RadiusMeters || e.AccuracyMeters > policy.AccuracyWarnMeters {
			out.Flags = out.Flags.Add(domain.FlagAccuracyDegraded)
		}

	case overrideValid:
		out.Decision = domain.DecisionAccepted
		out.Overridden = true
		out.Flags = out.Flags.Add(domain.FlagAdminOverride)

	default:
		out.Decision = domain.DecisionRejectedOutsideZone
	}

	return out
}

// Confidence scores how strongly the evidence supports the reported fix
// being genuine and inside the matched zone. It falls with accuracy
// relative to zone size and with each warning flag.
func Confidence(accuracy float64, radius float64, flags domain.Flags) float64 {
	c := 0.5
	if radius > 0 {
		c = 1 / (1 + accuracy/(2*radius))
	}
	penalties := map[domain.Flag]float64{
		domain.FlagAccuracyDegraded:     0.85,
		domain.FlagDegenerateAccuracy:   0.6,
		domain.FlagMockLocationReported: 0.5,
		domain.FlagZoneDataStale:        0.9,
		domain.FlagNoZonesConfigured:    0.8,
		domain.FlagLateSubmission:       0.95,
	}
	for _, f := range flags {
		if p, ok := penalties[f]; ok {
			c *= p
		}
	}
	return math.Max(0, math.Min(1, c))
}
