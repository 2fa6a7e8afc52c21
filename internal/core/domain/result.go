package domain

import (
	"encoding/json"
	"math"
	"sort"
)

// Decision is the outcome of validating an attendance event.
type Decision string

const (
	DecisionAccepted                   Decision = "Accepted"
	DecisionRejectedOutsideZone        Decision = "RejectedOutsideZone"
	DecisionRejectedLowAccuracy        Decision = "RejectedLowAccuracy"
	DecisionRejectedSuspiciousMovement Decision = "RejectedSuspiciousMovement"
	DecisionRejectedDuplicate          Decision = "RejectedDuplicate"
	DecisionRejectedInvalidTransition  Decision = "RejectedInvalidTransition"
)

// Decisions returns all decisions in a stable order.
func Decisions() []Decision {
	return []Decision{
		DecisionAccepted,
		DecisionRejectedOutsideZone,
		DecisionRejectedLowAccuracy,
		DecisionRejectedSuspiciousMovement,
		DecisionRejectedDuplicate,
		DecisionRejectedInvalidTransition,
	}
}

// IsAccepted reports whether d accepts the event.
func (d Decision) IsAccepted() bool {
	return d == DecisionAccepted
}

// Flag annotates a decision with a non-fatal observation.
type Flag string

const (
	FlagAccuracyDegraded     Flag = "AccuracyDegraded"
	FlagNoZonesConfigured    Flag = "NoZonesConfigured"
	FlagZoneDataStale        Flag = "ZoneDataStale"
	FlagDegenerateAccuracy   Flag = "DegenerateAccuracy"
	FlagMockLocationReported Flag = "MockLocationReported"
	FlagAdminOverride        Flag = "AdminOverride"
	FlagLateSubmission       Flag = "LateSubmission"
)

// Flags is a set of flags kept sorted and free of duplicates so that
// serialized results are stable.
type Flags []Flag

// Add inserts f if absent and keeps the set sorted.
func (fs Flags) Add(f Flag) Flags {
	if fs.Has(f) {
		return fs
	}
	out := append(fs, f)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Has reports whether f is in the set.
func (fs Flags) Has(f Flag) bool {
	for _, x := range fs {
		if x == f {
			return true
		}
	}
	return false
}

// MarshalJSON always emits an array, never null.
func (fs Flags) MarshalJSON() ([]byte, error) {
	if fs == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Flag(fs))
}

// ValidationResult is returned for every submitted event and stored under
// the event's client event ID for idempotent replay.
type ValidationResult struct {
	EventID        string   `json:"eventId"`
	Decision       Decision `json:"decision"`
	DistanceMeters float64  `json:"distanceMeters"`
	// MatchedZoneID is null when no zone matched.
	MatchedZoneID *string      `json:"matchedZoneId"`
	Confidence    float64      `json:"confidence"`
	Flags         Flags        `json:"flags"`
	SessionState  SessionState `json:"sessionState"`
}

// NewResult starts a result for eventID with the given decision.
func NewResult(eventID string, d Decision) *ValidationResult {
	return &ValidationResult{EventID: eventID, Decision: d, Flags: Flags{}}
}

// SetMatchedZone records the matched zone ID.
func (r *ValidationResult) SetMatchedZone(zoneID string) {
	if zoneID == "" {
		r.MatchedZoneID = nil
		return
	}
	id := zoneID
	r.MatchedZoneID = &id
}

// MatchedZone returns the matched zone ID or "".
func (r *ValidationResult) MatchedZone() string {
	if r.MatchedZoneID == nil {
		return ""
	}
	return *r.MatchedZoneID
}

// AddFlag adds a flag to the result.
func (r *ValidationResult) AddFlag(f Flag) {
	r.Flags = r.Flags.Add(f)
}

// Normalize rounds floating fields so that a stored result re-serializes
// to the same bytes.
func (r *ValidationResult) Normalize() {
	r.DistanceMeters = round(r.DistanceMeters, 2)
	r.Confidence = round(math.Max(0, math.Min(1, r.Confidence)), 3)
	if r.Flags == nil {
		r.Flags = Flags{}
	}
}

// Clone creates a deep copy of the result.
func (r *ValidationResult) Clone() *ValidationResult {
	c := *r
	if r.MatchedZoneID != nil {
		id := *r.MatchedZoneID
		c.MatchedZoneID = &id
	}
	c.Flags = append(Flags{}, r.Flags...)
	return &c
}

func round(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
