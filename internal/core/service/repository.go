package service

import (
	"context"
	"time"

	"github.com/yndnr/geoattend-go/internal/core/domain"
)

// SessionRepository stores attendance sessions, last accepted fixes and
// idempotency results.
type SessionRepository interface {
	// GetSession returns the session for key. A session that was never
	// stored is returned in NotStarted state with Version 0.
	GetSession(ctx context.Context, key domain.SessionKey) (*domain.AttendanceSession, error)

	// LastFix returns the employee's last accepted fix, or nil if none.
	LastFix(ctx context.Context, tenantID, employeeID string) (*domain.LocationFix, error)

	// GetResult returns the stored result for a client event ID.
	// Returns domain.ErrResultNotFound if none is stored.
	GetResult(ctx context.Context, tenantID, employeeID, clientEventID string) (*domain.ValidationResult, error)

	// Commit atomically writes c. When c.Session is set the write is
	// conditional on the stored version equaling c.ExpectedVersion and
	// fails with domain.ErrSessionVersionConflict otherwise.
	Commit(ctx context.Context, c *domain.Commit) error

	// ListSessions returns an employee's sessions with dates in [from, to].
	ListSessions(ctx context.Context, tenantID, employeeID, from, to string) ([]*domain.AttendanceSession, error)
}

// AuditFilter selects audit records.
type AuditFilter struct {
	TenantID     string
	EmployeeID   string
	RejectedOnly bool
	Limit        int
}

// AuditLog is the append-only record of every evaluation and override.
type AuditLog interface {
	// Append durably writes rec and assigns rec.Seq. It must not return
	// before the record is synced according to the log's sync policy.
	Append(ctx context.Context, rec *domain.AuditRecord) error

	// Get returns the latest record for eventID.
	// Returns domain.ErrEventNotFound if none exists.
	Get(ctx context.Context, eventID string) (*domain.AuditRecord, error)

	// List returns the latest record per event matching f, newest first.
	List(ctx context.Context, f AuditFilter) ([]*domain.AuditRecord, error)
}

// ZoneSource loads a tenant's zones and policy. Unknown tenants yield an
// empty config, not an error.
type ZoneSource interface {
	LoadTenant(ctx context.Context, tenantID string) (*domain.TenantConfig, error)
}

// Observer receives service-level measurements. The metric package
// provides the Prometheus implementation.
type Observer interface {
	ObserveDecision(d domain.Decision, elapsed time.Duration)
	ObserveZoneLookup(outcome string)
	ObserveAuditAppend(err error)
}

// Zone lookup outcomes reported to Observer.
const (
	ZoneLookupHit     = "hit"
	ZoneLookupRefresh = "refresh"
	ZoneLookupStale   = "stale"
	ZoneLookupError   = "error"
)

type nopObserver struct{}

func (nopObserver) ObserveDecision(domain.Decision, time.Duration) {}
func (nopObserver) ObserveZoneLookup(string)                        {}
func (nopObserver) ObserveAuditAppend(error)                        {}
