package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/geoattend-go/internal/core/domain"
)

func sessionKey(date string) domain.SessionKey {
	return domain.SessionKey{TenantID: "acme", EmployeeID: "emp-1", Date: date}
}

func checkIn(key domain.SessionKey, eventID string) *domain.AttendanceSession {
	s := domain.NewSession(key)
	s.Apply(&domain.AttendanceEvent{EventID: eventID, Type: domain.EventCheckIn, DeviceTimestamp: time.Now()})
	return s
}

func TestStore_GetSessionDefaultsToNotStarted(t *testing.T) {
	store := New()
	s, err := store.GetSession(context.Background(), sessionKey("2026-03-10"))
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if s.State != domain.SessionNotStarted || s.Version != 0 {
		t.Fatalf("GetSession = %s v%d, want NotStarted v0", s.State, s.Version)
	}
	if store.Count() != 0 {
		t.Fatalf("Count = %d, want 0 (reads must not create sessions)", store.Count())
	}
}

func TestStore_CommitVersioning(t *testing.T) {
	store := New()
	ctx := context.Background()
	key := sessionKey("2026-03-10")

	err := store.Commit(ctx, &domain.Commit{
		Session: checkIn(key, "gaev-1"), ExpectedVersion: 0,
		TenantID: "acme", EmployeeID: "emp-1", ClientEventID: "c-1",
		Result: domain.NewResult("gaev-1", domain.DecisionAccepted),
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, _ := store.GetSession(ctx, key)
	if got.State != domain.SessionOpen || got.Version != 1 {
		t.Fatalf("session = %s v%d, want Open v1", got.State, got.Version)
	}

	// Stale writer loses.
	err = store.Commit(ctx, &domain.Commit{
		Session: checkIn(key, "gaev-2"), ExpectedVersion: 0,
		TenantID: "acme", EmployeeID: "emp-1", ClientEventID: "c-2",
		Result: domain.NewResult("gaev-2", domain.DecisionAccepted),
	})
	if !errors.Is(err, domain.ErrSessionVersionConflict) {
		t.Fatalf("stale Commit err = %v, want ErrSessionVersionConflict", err)
	}
	if _, err := store.GetResult(ctx, "acme", "emp-1", "c-2"); !errors.Is(err, domain.ErrResultNotFound) {
		t.Fatalf("failed commit stored a result: %v", err)
	}

	// The caller's session is not mutated by the store.
	next := got.Clone()
	next.Apply(&domain.AttendanceEvent{EventID: "gaev-3", Type: domain.EventCheckOut, DeviceTimestamp: time.Now()})
	if err := store.Commit(ctx, &domain.Commit{Session: next, ExpectedVersion: 1, TenantID: "acme", EmployeeID: "emp-1"}); err != nil {
		t.Fatalf("Commit v1: %v", err)
	}
	if next.Version != 1 {
		t.Fatalf("caller session Version = %d, want unchanged 1", next.Version)
	}
}

func TestStore_ResultsAndFixes(t *testing.T) {
	store := New()
	ctx := context.Background()

	if fix, err := store.LastFix(ctx, "acme", "emp-1"); err != nil || fix != nil {
		t.Fatalf("LastFix on empty store = %v, %v", fix, err)
	}

	r := domain.NewResult("gaev-1", domain.DecisionRejectedOutsideZone)
	fix := &domain.LocationFix{EventID: "gaev-0", Lat: 12.97, Lng: 77.59, DeviceTimestamp: time.Now()}
	if err := store.Commit(ctx, &domain.Commit{TenantID: "acme", EmployeeID: "emp-1", ClientEventID: "c-1", Result: r, Fix: fix}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, err := store.GetResult(ctx, "acme", "emp-1", "c-1")
	if err != nil || got.Decision != domain.DecisionRejectedOutsideZone {
		t.Fatalf("GetResult = %+v, %v", got, err)
	}
	got.Decision = domain.DecisionAccepted
	again, _ := store.GetResult(ctx, "acme", "emp-1", "c-1")
	if again.Decision != domain.DecisionRejectedOutsideZone {
		t.Fatal("stored result mutated through returned copy")
	}

	if _, err := store.GetResult(ctx, "acme", "emp-2", "c-1"); !errors.Is(err, domain.ErrResultNotFound) {
		t.Fatalf("results must be scoped per employee: %v", err)
	}

	gotFix, _ := store.LastFix(ctx, "acme", "emp-1")
	if gotFix == nil || gotFix.EventID != "gaev-0" {
		t.Fatalf("LastFix = %+v, want gaev-0", gotFix)
	}
}

func TestStore_ListSessions(t *testing.T) {
	store := New()
	ctx := context.Background()

	for _, d := range []string{"2026-03-12", "2026-03-10", "2026-03-11", "2026-04-01"} {
		key := sessionKey(d)
		if err := store.Commit(ctx, &domain.Commit{Session: checkIn(key, "gaev-"+d), TenantID: "acme", EmployeeID: "emp-1"}); err != nil {
			t.Fatalf("Commit %s: %v", d, err)
		}
	}

	list, err := store.ListSessions(ctx, "acme", "emp-1", "2026-03-01", "2026-03-31")
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("len(list) = %d, want 3", len(list))
	}
	for i, want := range []string{"2026-03-10", "2026-03-11", "2026-03-12"} {
		if list[i].Date != want {
			t.Errorf("list[%d].Date = %s, want %s", i, list[i].Date, want)
		}
	}

	if list, _ := store.ListSessions(ctx, "acme", "emp-2", "2026-01-01", "2026-12-31"); len(list) != 0 {
		t.Errorf("unknown employee list = %d, want 0", len(list))
	}
}

func TestStore_ConcurrentCommits(t *testing.T) {
	store := New()
	ctx := context.Background()
	key := sessionKey("2026-03-10")

	const n = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.Commit(ctx, &domain.Commit{Session: checkIn(key, "gaev"), ExpectedVersion: 0, TenantID: "acme", EmployeeID: "emp-1"})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("successful commits = %d, want 1", wins)
	}
}

func TestStore_NeighbouringIdentifiersIsolated(t *testing.T) {
	store := New()
	ctx := context.Background()

	commit := func(tenant, employee, cid, eventID, date string) {
		t.Helper()
		key := domain.SessionKey{TenantID: tenant, EmployeeID: employee, Date: date}
		err := store.Commit(ctx, &domain.Commit{
			Session: checkIn(key, eventID), TenantID: tenant, EmployeeID: employee, ClientEventID: cid,
			Result: domain.NewResult(eventID, domain.DecisionAccepted),
		})
		if err != nil {
			t.Fatalf("Commit(%s/%s): %v", tenant, employee, err)
		}
	}
	commit("acme", "alice", "x:c1", "gaev-a", "2026-03-10")
	commit("acme", "alice:x", "c1", "gaev-b", "2026-03-11")
	commit("acme", "emp-10", "c1", "gaev-c", "2026-03-12")
	commit("acme.eu", "emp-1", "c1", "gaev-d", "2026-03-13")

	if r, err := store.GetResult(ctx, "acme", "alice", "x:c1"); err != nil || r.EventID != "gaev-a" {
		t.Fatalf("GetResult(alice) = %+v, %v", r, err)
	}
	if r, err := store.GetResult(ctx, "acme", "alice:x", "c1"); err != nil || r.EventID != "gaev-b" {
		t.Fatalf("GetResult(alice:x) = %+v, %v", r, err)
	}
	if _, err := store.GetResult(ctx, "acme", "emp-1", "c1"); !errors.Is(err, domain.ErrResultNotFound) {
		t.Fatalf("GetResult(emp-1) err = %v, want ErrResultNotFound", err)
	}

	list, _ := store.ListSessions(ctx, "acme", "emp-1", "2026-01-01", "2026-12-31")
	if len(list) != 0 {
		t.Fatalf("ListSessions(acme, emp-1) = %d sessions, want none from emp-10 or acme.eu", len(list))
	}
	list, _ = store.ListSessions(ctx, "acme.eu", "emp-1", "2026-01-01", "2026-12-31")
	if len(list) != 1 || list[0].Date != "2026-03-13" {
		t.Fatalf("ListSessions(acme.eu, emp-1) = %+v", list)
	}
}
