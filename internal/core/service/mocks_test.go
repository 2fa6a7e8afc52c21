package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yndnr/geoattend-go/internal/core/domain"
)

// mockSessionRepo is an in-memory SessionRepository for testing.
type mockSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.AttendanceSession
	fixes    map[string]*domain.LocationFix
	results  map[string]*domain.ValidationResult
	commits  int

	// conflicts makes the next n conditional commits fail.
	conflicts int
	err       error
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{
		sessions: make(map[string]*domain.AttendanceSession),
		fixes:    make(map[string]*domain.LocationFix),
		results:  make(map[string]*domain.ValidationResult),
	}
}

func resultKey(tenantID, employeeID, clientEventID string) string {
	return tenantID + "/" + employeeID + "/" + clientEventID
}

func (m *mockSessionRepo) GetSession(ctx context.Context, key domain.SessionKey) (*domain.AttendanceSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if s, ok := m.sessions[key.String()]; ok {
		return s.Clone(), nil
	}
	return domain.NewSession(key), nil
}

func (m *mockSessionRepo) LastFix(ctx context.Context, tenantID, employeeID string) (*domain.LocationFix, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.fixes[domain.EmployeeKey(tenantID, employeeID)]; ok {
		c := *f
		return &c, nil
	}
	return nil, nil
}

func (m *mockSessionRepo) GetResult(ctx context.Context, tenantID, employeeID, clientEventID string) (*domain.ValidationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.results[resultKey(tenantID, employeeID, clientEventID)]; ok {
		return r.Clone(), nil
	}
	return nil, domain.ErrResultNotFound
}

func (m *mockSessionRepo) Commit(ctx context.Context, c *domain.Commit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.Session != nil {
		if m.conflicts > 0 {
			m.conflicts--
			return domain.ErrSessionVersionConflict
		}
		var current uint64
		if s, ok := m.sessions[c.Session.Key().String()]; ok {
			current = s.Version
		}
		if current != c.ExpectedVersion {
			return domain.ErrSessionVersionConflict
		}
		next := c.Session.Clone()
		next.Version = c.ExpectedVersion + 1
		m.sessions[next.Key().String()] = next
	}
	if c.Fix != nil {
		f := *c.Fix
		m.fixes[domain.EmployeeKey(c.TenantID, c.EmployeeID)] = &f
	}
	if c.Result != nil {
		m.results[resultKey(c.TenantID, c.EmployeeID, c.ClientEventID)] = c.Result.Clone()
	}
	m.commits++
	return nil
}

func (m *mockSessionRepo) ListSessions(ctx context.Context, tenantID, employeeID, from, to string) ([]*domain.AttendanceSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.AttendanceSession
	for _, s := range m.sessions {
		if s.TenantID == tenantID && s.EmployeeID == employeeID && s.Date >= from && s.Date <= to {
			out = append(out, s.Clone())
		}
	}
	return out, nil
}

func (m *mockSessionRepo) session(key domain.SessionKey) *domain.AttendanceSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[key.String()]
}

// mockAuditLog is an in-memory AuditLog for testing.
type mockAuditLog struct {
	mu      sync.Mutex
	records []*domain.AuditRecord
	err     error
}

func (m *mockAuditLog) Append(ctx context.Context, rec *domain.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	rec.Seq = uint64(len(m.records) + 1)
	c := *rec
	c.Event = rec.Event.Clone()
	c.Result = rec.Result.Clone()
	m.records = append(m.records, &c)
	return nil
}

func (m *mockAuditLog) Get(ctx context.Context, eventID string) (*domain.AuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].EventID == eventID {
			return m.records[i], nil
		}
	}
	return nil, domain.ErrEventNotFound
}

func (m *mockAuditLog) List(ctx context.Context, f AuditFilter) ([]*domain.AuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var out []*domain.AuditRecord
	for i := len(m.records) - 1; i >= 0; i-- {
		r := m.records[i]
		if seen[r.EventID] {
			continue
		}
		seen[r.EventID] = true
		if f.TenantID != "" && r.Event.TenantID != f.TenantID {
			continue
		}
		if f.EmployeeID != "" && r.Event.EmployeeID != f.EmployeeID {
			continue
		}
		if f.RejectedOnly && r.IsAccepted() {
			continue
		}
		out = append(out, r)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (m *mockAuditLog) all() []*domain.AuditRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.AuditRecord(nil), m.records...)
}

func (m *mockAuditLog) kinds(eventID string) []domain.AuditKind {
	var out []domain.AuditKind
	for _, r := range m.all() {
		if r.EventID == eventID {
			out = append(out, r.Kind)
		}
	}
	return out
}

// mockZoneSource serves tenant configs from a map.
type mockZoneSource struct {
	mu      sync.Mutex
	tenants map[string]*domain.TenantConfig
	err     error
	loads   int
	delay   time.Duration
}

func newMockZoneSource(cfgs ...*domain.TenantConfig) *mockZoneSource {
	m := &mockZoneSource{tenants: make(map[string]*domain.TenantConfig)}
	for _, c := range cfgs {
		m.tenants[c.TenantID] = c
	}
	return m
}

func (m *mockZoneSource) LoadTenant(ctx context.Context, tenantID string) (*domain.TenantConfig, error) {
	m.mu.Lock()
	m.loads++
	err, delay := m.err, m.delay
	cfg := m.tenants[tenantID]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return &domain.TenantConfig{TenantID: tenantID}, nil
	}
	return cfg, nil
}

func (m *mockZoneSource) set(fn func(m *mockZoneSource)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

func (m *mockZoneSource) loadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads
}

// recordingObserver counts observations.
type recordingObserver struct {
	mu        sync.Mutex
	decisions map[domain.Decision]int
	lookups   map[string]int
	appendErr int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		decisions: make(map[domain.Decision]int),
		lookups:   make(map[string]int),
	}
}

func (o *recordingObserver) ObserveDecision(d domain.Decision, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.decisions[d]++
}

func (o *recordingObserver) ObserveZoneLookup(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lookups[outcome]++
}

func (o *recordingObserver) ObserveAuditAppend(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.appendErr++
	}
}

func (o *recordingObserver) lookupCount(outcome string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lookups[outcome]
}

var errSourceDown = errors.New("zone source down")
