package service

import (
	"fmt"
	"time"

	"github.com/yndnr/geoattend-go/internal/core/domain"
	"github.com/yndnr/geoattend-go/pkg/geo"
)

// MinEventSpacing is the smallest device-time gap between an event and the
// employee's last accepted fix. Closer events are treated as duplicates.
const MinEventSpacing = time.Second

// SpoofVerdict is the outcome of SpoofDetector.Inspect. An empty Decision
// means the event may proceed to zone matching.
type SpoofVerdict struct {
	Decision domain.Decision
	Flags    domain.Flags
	// Reason explains a rejection for logs and audit review.
	Reason string
	// SpeedKmh is the implied speed from the last fix, 0 if there was none.
	SpeedKmh float64
}

// Rejected reports whether the verdict rejects the event.
func (v SpoofVerdict) Rejected() bool {
	return v.Decision != ""
}

// SpoofDetector applies cheap plausibility heuristics before zone math.
// It is stateless; the caller supplies the last accepted fix.
type SpoofDetector struct{}

// NewSpoofDetector creates a new SpoofDetector.
func NewSpoofDetector() *SpoofDetector {
	return &SpoofDetector{}
}

// Inspect judges e against the employee's last accepted fix under policy.
// last may be nil.
func (d *SpoofDetector) Inspect(e *domain.AttendanceEvent, last *domain.LocationFix, policy domain.TenantPolicy) SpoofVerdict {
	var v SpoofVerdict

	if last != nil && last.EventID != e.EventID {
		dt := e.DeviceTimestamp.Sub(last.DeviceTimestamp)
		if dt < 0 {
			dt = -dt
		}
		if dt < MinEventSpacing {
			v.Decision = domain.DecisionRejectedDuplicate
			v.Reason = fmt.Sprintf("%s after last accepted event %s", dt, last.EventID)
			return v
		}
		meters := geo.MustDistance(last.Point(), e.Point())
		v.SpeedKmh = geo.SpeedKmh(meters, dt.Seconds())
		if v.SpeedKmh > policy.MaxSpeedKmh {
			v.Decision = domain.DecisionRejectedSuspiciousMovement
			v.Reason = fmt.Sprintf("implied speed %.0f km/h exceeds %.0f km/h", v.SpeedKmh, policy.MaxSpeedKmh)
			return v
		}
	}

	degenerate := e.AccuracyMeters == 0
	if degenerate {
		v.Flags = v.Flags.Add(domain.FlagDegenerateAccuracy)
	}

	if e.MockLocationFlag {
		switch {
		case degenerate:
			// A mocked fix that also claims perfect accuracy is rejected
			// regardless of mode.
			v.Decision = domain.DecisionRejectedSuspiciousMovement
			v.Reason = "mock location reported with zero accuracy"
		case policy.AllowMockLocation || policy.EnforcementMode == domain.EnforcementAdvisory:
			v.Flags = v.Flags.Add(domain.FlagMockLocationReported)
		default:
			v.Decision = domain.DecisionRejectedSuspiciousMovement
			v.Reason = "mock location reported"
		}
		if v.Rejected() {
			v.Flags = v.Flags.Add(domain.FlagMockLocationReported)
		}
	}

	return v
}
