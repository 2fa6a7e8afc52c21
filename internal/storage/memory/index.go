package memory

import (
	"sort"
	"sync"

	"github.com/yndnr/geoattend-go/pkg/cmap"
)

// DateSet is a concurrent-safe set of calendar dates.
type DateSet struct {
	mu    sync.RWMutex
	items map[string]struct{}
}

// NewDateSet creates a new date set.
func NewDateSet() *DateSet {
	return &DateSet{items: make(map[string]struct{})}
}

// Add adds a date to the set.
func (s *DateSet) Add(date string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[date] = struct{}{}
}

// Len returns the number of dates in the set.
func (s *DateSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Between returns the dates in [from, to] in ascending order.
// YYYY-MM-DD strings order the same as the dates they name.
func (s *DateSet) Between(from, to string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for d := range s.items {
		if d >= from && d <= to {
			out = append(out, d)
		}
	}
	sort.Strings(out)
	return out
}

// EmployeeIndex maps an employee key (tenant/employee) to the dates for
// which a session is stored.
type EmployeeIndex struct {
	index *cmap.Map[*DateSet]
}

// NewEmployeeIndex creates a new employee index.
func NewEmployeeIndex() *EmployeeIndex {
	return &EmployeeIndex{index: cmap.New[*DateSet]()}
}

// Add records a session date for an employee.
func (i *EmployeeIndex) Add(employeeKey, date string) {
	set, _ := i.index.GetOrSet(employeeKey, NewDateSet())
	set.Add(date)
}

// Between returns the employee's session dates in [from, to].
func (i *EmployeeIndex) Between(employeeKey, from, to string) []string {
	set, ok := i.index.Get(employeeKey)
	if !ok {
		return nil
	}
	return set.Between(from, to)
}

// Count returns the number of session dates for an employee.
func (i *EmployeeIndex) Count(employeeKey string) int {
	set, ok := i.index.Get(employeeKey)
	if !ok {
		return 0
	}
	return set.Len()
}
