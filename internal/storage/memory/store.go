package memory

import (
	"context"

	"github.com/yndnr/geoattend-go/internal/core/domain"
	"github.com/yndnr/geoattend-go/internal/core/service"
	"github.com/yndnr/geoattend-go/pkg/cmap"
	"github.com/yndnr/geoattend-go/pkg/keylock"
)

var _ service.SessionRepository = (*Store)(nil)

// Store is an in-memory service.SessionRepository.
type Store struct {
	// Primary index: tenant/employee/date -> session
	sessions *cmap.Map[*domain.AttendanceSession]

	// tenant/employee -> last accepted fix
	fixes *cmap.Map[*domain.LocationFix]

	// tenant/employee/clientEventID -> stored result
	results *cmap.Map[*domain.ValidationResult]

	// Secondary index: tenant/employee -> session dates
	employees *EmployeeIndex

	// Serializes commits per employee.
	locks *keylock.Table
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		sessions:  cmap.New[*domain.AttendanceSession](),
		fixes:     cmap.New[*domain.LocationFix](),
		results:   cmap.New[*domain.ValidationResult](),
		employees: NewEmployeeIndex(),
		locks:     keylock.New(),
	}
}

// ResultKey is the idempotency key of a client event.
func ResultKey(tenantID, employeeID, clientEventID string) string {
	return domain.EmployeeKey(tenantID, employeeID) + "/" + clientEventID
}

// GetSession returns the session for key, NotStarted if none is stored.
func (s *Store) GetSession(_ context.Context, key domain.SessionKey) (*domain.AttendanceSession, error) {
	session, ok := s.sessions.Get(key.String())
	if !ok {
		return domain.NewSession(key), nil
	}
	// Return a clone to prevent external modification
	return session.Clone(), nil
}

// LastFix returns the employee's last accepted fix.
func (s *Store) LastFix(_ context.Context, tenantID, employeeID string) (*domain.LocationFix, error) {
	fix, ok := s.fixes.Get(domain.EmployeeKey(tenantID, employeeID))
	if !ok {
		return nil, nil
	}
	c := *fix
	return &c, nil
}

// GetResult returns the stored result of a client event.
func (s *Store) GetResult(_ context.Context, tenantID, employeeID, clientEventID string) (*domain.ValidationResult, error) {
	r, ok := s.results.Get(ResultKey(tenantID, employeeID, clientEventID))
	if !ok {
		return nil, domain.ErrResultNotFound
	}
	return r.Clone(), nil
}

// Commit writes c atomically with respect to other commits for the same
// employee.
func (s *Store) Commit(_ context.Context, c *domain.Commit) error {
	empKey := domain.EmployeeKey(c.TenantID, c.EmployeeID)
	unlock := s.locks.Lock(empKey)
	defer unlock()

	if c.Session != nil {
		next := c.Session.Clone()
		if !cmap.CompareAndSwap(s.sessions, next.Key().String(), c.ExpectedVersion, next) {
			return domain.ErrSessionVersionConflict
		}
		s.employees.Add(empKey, next.Date)
	}
	if c.Fix != nil {
		fix := *c.Fix
		s.fixes.Set(empKey, &fix)
	}
	if c.Result != nil {
		s.results.Set(ResultKey(c.TenantID, c.EmployeeID, c.ClientEventID), c.Result.Clone())
	}
	return nil
}

// ListSessions returns an employee's sessions with dates in [from, to].
func (s *Store) ListSessions(_ context.Context, tenantID, employeeID, from, to string) ([]*domain.AttendanceSession, error) {
	dates := s.employees.Between(domain.EmployeeKey(tenantID, employeeID), from, to)
	out := make([]*domain.AttendanceSession, 0, len(dates))
	for _, d := range dates {
		key := domain.SessionKey{TenantID: tenantID, EmployeeID: employeeID, Date: d}
		if session, ok := s.sessions.Get(key.String()); ok {
			out = append(out, session.Clone())
		}
	}
	return out, nil
}

// Count returns the number of stored sessions.
func (s *Store) Count() int {
	return s.sessions.Count()
}
