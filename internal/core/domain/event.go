package domain

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/geoattend-go/pkg/geo"
)

// Event constraints.
const (
	MaxTenantIDLength      = 64
	MaxEmployeeIDLength    = 128
	MaxClientEventIDLength = 128
	MaxDeviceIDLength      = 128

	// EventIDPrefix is the prefix for engine-assigned event IDs.
	EventIDPrefix = "gaev-"

	// CalendarDateLayout is the layout of session calendar dates.
	CalendarDateLayout = "2006-01-02"
)

// IsValidIdentifier reports whether id is a non-empty caller-supplied
// identifier of at most max bytes drawn from [A-Za-z0-9._:@+-]. IDs are
// joined with "/" into storage and lock keys, so the separator is never
// allowed inside one.
func IsValidIdentifier(id string, max int) bool {
	if id == "" || len(id) > max {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.', c == ':', c == '@', c == '+':
		default:
			return false
		}
	}
	return true
}

// identifierViolation describes why id failed IsValidIdentifier, or
// returns "" when it is valid.
func identifierViolation(field, id string, max int) string {
	switch {
	case id == "":
		return field + " is required"
	case len(id) > max:
		return fmt.Sprintf("%s exceeds %d characters", field, max)
	case !IsValidIdentifier(id, max):
		return field + " may only contain letters, digits and . _ : @ + -"
	}
	return ""
}

// EventType is the kind of attendance event.
type EventType string

const (
	EventCheckIn  EventType = "CheckIn"
	EventCheckOut EventType = "CheckOut"
)

// IsValid reports whether t is a known event type.
func (t EventType) IsValid() bool {
	return t == EventCheckIn || t == EventCheckOut
}

// AttendanceEvent is one location sample submitted for a check-in or
// check-out. It is immutable once appended to the audit log.
type AttendanceEvent struct {
	// EventID is assigned by the engine. Format: gaev-{ulid_lowercase}.
	EventID string `json:"event_id"`

	TenantID   string `json:"tenant_id"`
	EmployeeID string `json:"employee_id"`

	// ClientEventID is the device-generated idempotency key.
	ClientEventID string `json:"client_event_id"`

	Type EventType `json:"type"`

	Lat            float64 `json:"lat"`
	Lng            float64 `json:"lng"`
	AccuracyMeters float64 `json:"accuracy_meters"`

	// DeviceTimestamp is when the device captured the fix.
	DeviceTimestamp time.Time `json:"device_timestamp"`

	// ServerReceivedAt is assigned by the engine on arrival.
	ServerReceivedAt time.Time `json:"server_received_at"`

	DeviceID         string `json:"device_id,omitempty"`
	MockLocationFlag bool   `json:"mock_location_flag"`

	// OverrideToken is an admin-issued token that lets an out-of-zone event
	// be accepted. It is never persisted or logged.
	OverrideToken string `json:"-"`
}

// GenerateEventID generates a new engine event ID.
func GenerateEventID() (string, error) {
	return newPrefixedID(EventIDPrefix)
}

// IsValidEventID checks the format of an engine event ID.
func IsValidEventID(id string) bool {
	return isPrefixedULID(id, EventIDPrefix)
}

// Point returns the reported position.
func (e *AttendanceEvent) Point() geo.Point {
	return geo.Point{Lat: e.Lat, Lng: e.Lng}
}

// CalendarDate returns the event's calendar date in loc.
func (e *AttendanceEvent) CalendarDate(loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return e.DeviceTimestamp.In(loc).Format(CalendarDateLayout)
}

// SessionKey returns the session this event applies to under loc.
func (e *AttendanceEvent) SessionKey(loc *time.Location) SessionKey {
	return SessionKey{TenantID: e.TenantID, EmployeeID: e.EmployeeID, Date: e.CalendarDate(loc)}
}

// Validate checks structural constraints. Coordinate problems are reported
// as ErrInvalidCoordinate so callers can map them separately.
func (e *AttendanceEvent) Validate() error {
	if err := geo.ValidateCoordinate(e.Lat, e.Lng); err != nil {
		return ErrInvalidCoordinate.WithDetails(strings.TrimPrefix(err.Error(), geo.ErrInvalidCoordinate.Error()+": ")).WithCause(err)
	}
	if math.IsNaN(e.AccuracyMeters) || math.IsInf(e.AccuracyMeters, 0) || e.AccuracyMeters < 0 {
		return ErrInvalidAccuracy.WithDetails("accuracy_meters must be a non-negative number")
	}

	var violations []string
	for _, f := range []struct {
		name, id string
		max      int
	}{
		{"tenant_id", e.TenantID, MaxTenantIDLength},
		{"employee_id", e.EmployeeID, MaxEmployeeIDLength},
		{"client_event_id", e.ClientEventID, MaxClientEventIDLength},
	} {
		if v := identifierViolation(f.name, f.id, f.max); v != "" {
			violations = append(violations, v)
		}
	}
	if len(e.DeviceID) > MaxDeviceIDLength {
		violations = append(violations, "device_id exceeds 128 characters")
	}
	if !e.Type.IsValid() {
		violations = append(violations, "type must be CheckIn or CheckOut")
	}
	if e.DeviceTimestamp.IsZero() {
		violations = append(violations, "device_timestamp is required")
	}
	if len(violations) > 0 {
		return ErrInvalidEvent.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// CheckWindow verifies the device timestamp against the server clock.
// Events older than window or ahead by more than skew are rejected.
func (e *AttendanceEvent) CheckWindow(now time.Time, window, skew time.Duration) error {
	if window > 0 && now.Sub(e.DeviceTimestamp) > window {
		return ErrEventTooOld.WithDetails("device_timestamp older than " + window.String())
	}
	if skew > 0 && e.DeviceTimestamp.Sub(now) > skew {
		return ErrEventInFuture.WithDetails("device_timestamp ahead of server by more than " + skew.String())
	}
	return nil
}

// Clone creates a copy of the event.
func (e *AttendanceEvent) Clone() *AttendanceEvent {
	c := *e
	return &c
}

// LocationFix is the last accepted position of an employee, used to judge
// implied travel speed of the next event.
type LocationFix struct {
	EventID         string    `json:"event_id"`
	Lat             float64   `json:"lat"`
	Lng             float64   `json:"lng"`
	DeviceTimestamp time.Time `json:"device_timestamp"`
}

// Point returns the fix position.
func (f *LocationFix) Point() geo.Point {
	return geo.Point{Lat: f.Lat, Lng: f.Lng}
}

// FixFromEvent builds a LocationFix from an accepted event.
func FixFromEvent(e *AttendanceEvent) *LocationFix {
	return &LocationFix{
		EventID:         e.EventID,
		Lat:             e.Lat,
		Lng:             e.Lng,
		DeviceTimestamp: e.DeviceTimestamp,
	}
}

var errEmptyPrefix = errors.New("empty id prefix")

func newPrefixedID(prefix string) (string, error) {
	if prefix == "" {
		return "", ErrInternalServer.WithCause(errEmptyPrefix)
	}
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(timeNow()), entropy)
	if err != nil {
		return "", ErrInternalServer.WithCause(err)
	}
	return prefix + strings.ToLower(id.String()), nil
}

func isPrefixedULID(id, prefix string) bool {
	id = strings.ToLower(id)
	if !strings.HasPrefix(id, prefix) || len(id) != len(prefix)+ulid.EncodedSize {
		return false
	}
	_, err := ulid.Parse(strings.ToUpper(id[len(prefix):]))
	return err == nil
}
