package domain

import "time"

// AuditKind distinguishes audit log entries.
type AuditKind string

const (
	// AuditEvaluation records the decision for a submitted event.
	AuditEvaluation AuditKind = "evaluation"

	// AuditOverride records an administrator accepting a rejected event.
	AuditOverride AuditKind = "override"

	// AuditSuperseded replaces an earlier evaluation of the same event
	// whose commit lost a concurrent race.
	AuditSuperseded AuditKind = "superseded"
)

// AuditRecord is one immutable entry in the append-only audit log.
// The latest record for an EventID carries its effective result.
type AuditRecord struct {
	// Seq is assigned by the log on append.
	Seq uint64 `json:"seq"`

	Kind    AuditKind         `json:"kind"`
	EventID string            `json:"event_id"`
	Event   *AttendanceEvent  `json:"event"`
	Result  *ValidationResult `json:"result"`

	// Actor is the API key ID that caused the record.
	Actor string `json:"actor"`

	// Reason is free text supplied with overrides.
	Reason string `json:"reason,omitempty"`

	RecordedAt time.Time `json:"recorded_at"`
}

// NewAuditRecord builds a record stamped with the current time. The event
// is copied without its override token.
func NewAuditRecord(kind AuditKind, e *AttendanceEvent, r *ValidationResult, actor string) *AuditRecord {
	ev := e.Clone()
	ev.OverrideToken = ""
	return &AuditRecord{
		Kind:       kind,
		EventID:    e.EventID,
		Event:      ev,
		Result:     r,
		Actor:      actor,
		RecordedAt: timeNow().UTC(),
	}
}

// IsAccepted reports whether the record's result accepts the event.
func (a *AuditRecord) IsAccepted() bool {
	return a.Result != nil && a.Result.Decision.IsAccepted()
}
