package memory

import (
	"context"
	"sync"

	"github.com/yndnr/geoattend-go/internal/core/domain"
	"github.com/yndnr/geoattend-go/internal/core/service"
)

var _ service.AuditLog = (*AuditLog)(nil)

// AuditLog is a non-durable service.AuditLog, for tests and for running
// without an audit directory.
type AuditLog struct {
	mu      sync.RWMutex
	records []*domain.AuditRecord
	latest  map[string]int // eventID -> index into records
}

// NewAuditLog creates an empty audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{latest: make(map[string]int)}
}

// Append stores a copy of rec and assigns its sequence number.
func (l *AuditLog) Append(_ context.Context, rec *domain.AuditRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec.Seq = l.lastSeq() + 1
	l.addLocked(rec)
	return nil
}

// Load adds a record that already carries its sequence number, as read
// back from a durable log.
func (l *AuditLog) Load(rec *domain.AuditRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.addLocked(rec)
}

// LastSeq returns the highest sequence number stored.
func (l *AuditLog) LastSeq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastSeq()
}

func (l *AuditLog) lastSeq() uint64 {
	if len(l.records) == 0 {
		return 0
	}
	return l.records[len(l.records)-1].Seq
}

func (l *AuditLog) addLocked(rec *domain.AuditRecord) {
	c := cloneRecord(rec)
	l.latest[c.EventID] = len(l.records)
	l.records = append(l.records, c)
}

// cloneRecord copies rec deeply enough that callers cannot reach the
// stored event or result.
func cloneRecord(rec *domain.AuditRecord) *domain.AuditRecord {
	c := *rec
	if rec.Event != nil {
		c.Event = rec.Event.Clone()
	}
	if rec.Result != nil {
		c.Result = rec.Result.Clone()
	}
	return &c
}

// Len returns the number of records.
func (l *AuditLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Get returns the latest record for eventID.
func (l *AuditLog) Get(_ context.Context, eventID string) (*domain.AuditRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i, ok := l.latest[eventID]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	return cloneRecord(l.records[i]), nil
}

// List returns the latest record per event matching f, newest first.
func (l *AuditLog) List(_ context.Context, f service.AuditFilter) ([]*domain.AuditRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*domain.AuditRecord
	for i := len(l.records) - 1; i >= 0; i-- {
		r := l.records[i]
		if l.latest[r.EventID] != i || !MatchesFilter(r, f) {
			continue
		}
		out = append(out, cloneRecord(r))
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// Records returns all records in append order.
func (l *AuditLog) Records() []*domain.AuditRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*domain.AuditRecord, len(l.records))
	for i, r := range l.records {
		out[i] = cloneRecord(r)
	}
	return out
}

// MatchesFilter reports whether r satisfies f, ignoring the limit.
func MatchesFilter(r *domain.AuditRecord, f service.AuditFilter) bool {
	if r.Event == nil {
		return false
	}
	if f.TenantID != "" && r.Event.TenantID != f.TenantID {
		return false
	}
	if f.EmployeeID != "" && r.Event.EmployeeID != f.EmployeeID {
		return false
	}
	if f.RejectedOnly && r.IsAccepted() {
		return false
	}
	return true
}
