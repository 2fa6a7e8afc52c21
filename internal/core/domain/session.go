package domain

import (
	"strings"
	"time"
)

// SessionState is the state of an employee's attendance for one day.
type SessionState string

const (
	SessionNotStarted SessionState = "NotStarted"
	SessionOpen       SessionState = "Open"
	SessionClosed     SessionState = "Closed"
)

// SessionKey identifies an attendance session.
type SessionKey struct {
	TenantID   string `json:"tenant_id"`
	EmployeeID string `json:"employee_id"`
	// Date is the calendar date (YYYY-MM-DD) in the tenant's timezone.
	Date string `json:"date"`
}

// String returns the canonical "tenant/employee/date" form used for lock
// striping and storage keys.
func (k SessionKey) String() string {
	return k.TenantID + "/" + k.EmployeeID + "/" + k.Date
}

// EmployeeKey returns the "tenant/employee" prefix of the key.
func (k SessionKey) EmployeeKey() string {
	return EmployeeKey(k.TenantID, k.EmployeeID)
}

// Validate checks that the IDs are well formed and the date parses.
func (k SessionKey) Validate() error {
	var violations []string
	if v := identifierViolation("tenant_id", k.TenantID, MaxTenantIDLength); v != "" {
		violations = append(violations, v)
	}
	if v := identifierViolation("employee_id", k.EmployeeID, MaxEmployeeIDLength); v != "" {
		violations = append(violations, v)
	}
	if _, err := time.Parse(CalendarDateLayout, k.Date); err != nil {
		violations = append(violations, "date must be YYYY-MM-DD")
	}
	if len(violations) > 0 {
		return ErrInvalidArgument.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// EmployeeKey returns the "tenant/employee" key.
func EmployeeKey(tenantID, employeeID string) string {
	return tenantID + "/" + employeeID
}

// AttendanceSession is the per-employee per-day state machine
// NotStarted -> Open -> Closed. Closed is terminal for the day.
type AttendanceSession struct {
	TenantID   string       `json:"tenant_id"`
	EmployeeID string       `json:"employee_id"`
	Date       string       `json:"date"`
	State      SessionState `json:"state"`

	CheckInEventID  string `json:"check_in_event_id,omitempty"`
	CheckOutEventID string `json:"check_out_event_id,omitempty"`

	// OpenedAt and ClosedAt are device timestamps (Unix milliseconds).
	OpenedAt int64 `json:"opened_at,omitempty"`
	ClosedAt int64 `json:"closed_at,omitempty"`

	// UpdatedAt is the server time of the last commit (Unix milliseconds).
	UpdatedAt int64 `json:"updated_at,omitempty"`

	// Version is the optimistic lock version number. 0 means never stored.
	Version uint64 `json:"version"`
}

// NewSession returns the NotStarted session for key.
func NewSession(key SessionKey) *AttendanceSession {
	return &AttendanceSession{
		TenantID:   key.TenantID,
		EmployeeID: key.EmployeeID,
		Date:       key.Date,
		State:      SessionNotStarted,
	}
}

// Key returns the session key.
func (s *AttendanceSession) Key() SessionKey {
	return SessionKey{TenantID: s.TenantID, EmployeeID: s.EmployeeID, Date: s.Date}
}

// CanApply reports whether an event of type t is allowed from the current state.
func (s *AttendanceSession) CanApply(t EventType) bool {
	switch t {
	case EventCheckIn:
		return s.State == SessionNotStarted
	case EventCheckOut:
		return s.State == SessionOpen
	}
	return false
}

// Apply transitions the session for an accepted event. It returns
// ErrInvalidTransition if the event is not allowed from the current state.
// Version is left to the store.
func (s *AttendanceSession) Apply(e *AttendanceEvent) error {
	if !s.CanApply(e.Type) {
		return ErrInvalidTransition.WithDetails(string(e.Type) + " from " + string(s.State))
	}
	switch e.Type {
	case EventCheckIn:
		s.State = SessionOpen
		s.CheckInEventID = e.EventID
		s.OpenedAt = e.DeviceTimestamp.UnixMilli()
	case EventCheckOut:
		s.State = SessionClosed
		s.CheckOutEventID = e.EventID
		s.ClosedAt = e.DeviceTimestamp.UnixMilli()
	}
	s.UpdatedAt = timeNow().UnixMilli()
	return nil
}

// Duration returns the worked span of a closed session.
func (s *AttendanceSession) Duration() time.Duration {
	if s.State != SessionClosed || s.ClosedAt < s.OpenedAt {
		return 0
	}
	return time.Duration(s.ClosedAt-s.OpenedAt) * time.Millisecond
}

// GetVersion implements cmap.Versioned.
func (s *AttendanceSession) GetVersion() uint64 {
	return s.Version
}

// SetVersion implements cmap.Versioned.
func (s *AttendanceSession) SetVersion(v uint64) {
	s.Version = v
}

// Clone creates a copy of the session.
func (s *AttendanceSession) Clone() *AttendanceSession {
	c := *s
	return &c
}

// Commit is the unit a session store writes atomically for one decision:
// the new session (nil for rejected events), the employee's last fix, and
// the idempotency result.
type Commit struct {
	// Session is the transitioned session. Nil means no state change.
	Session *AttendanceSession

	// ExpectedVersion is the session version read before the transition.
	ExpectedVersion uint64

	// Fix replaces the employee's last accepted fix when non-nil.
	Fix *LocationFix

	TenantID      string
	EmployeeID    string
	ClientEventID string
	Result        *ValidationResult
}
