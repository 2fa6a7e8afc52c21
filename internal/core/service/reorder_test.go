package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/geoattend-go/internal/core/domain"
)

func heldEventAt(cid string, at time.Time) *domain.AttendanceEvent {
	return &domain.AttendanceEvent{TenantID: "acme", EmployeeID: "emp-1", ClientEventID: cid, DeviceTimestamp: at}
}

type callLog struct {
	mu    sync.Mutex
	order []string
}

func (l *callLog) fn(ctx context.Context, e *domain.AttendanceEvent) (*domain.ValidationResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.order = append(l.order, e.ClientEventID)
	return domain.NewResult(e.ClientEventID, domain.DecisionAccepted), nil
}

func (l *callLog) calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.order...)
}

func TestReorderQueue_DoOrdered(t *testing.T) {
	q := newReorderQueue(0, time.Second)
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	events := []*domain.AttendanceEvent{
		heldEventAt("c", base.Add(2*time.Minute)),
		heldEventAt("a", base),
		heldEventAt("b", base.Add(time.Minute)),
	}

	var log callLog
	outs := q.DoOrdered(context.Background(), "acme/emp-1", events, log.fn)

	if got := log.calls(); len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("processing order = %v, want [a b c]", got)
	}
	for i, o := range outs {
		if o.err != nil || o.result.EventID != events[i].ClientEventID {
			t.Errorf("outcome %d = %+v, want result for %s", i, o, events[i].ClientEventID)
		}
	}
}

func TestReorderQueue_DoOrderedCancelled(t *testing.T) {
	q := newReorderQueue(0, time.Second)
	unlock := q.employees.Lock("acme/emp-1")
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	var log callLog
	outs := q.DoOrdered(ctx, "acme/emp-1", []*domain.AttendanceEvent{heldEventAt("a", time.Now())}, log.fn)

	if !errors.Is(outs[0].err, domain.ErrDeadlineExceeded) {
		t.Errorf("error = %v, want ErrDeadlineExceeded", outs[0].err)
	}
	if len(log.calls()) != 0 {
		t.Error("no event may be processed without the employee lock")
	}
}

func TestReorderQueue_HoldSortsByDeviceTime(t *testing.T) {
	q := newReorderQueue(100*time.Millisecond, time.Second)
	base := time.Now().Add(-time.Hour)
	var log callLog

	offsets := map[string]time.Duration{"a": 0, "b": time.Minute, "c": 2 * time.Minute, "d": 3 * time.Minute}
	var wg sync.WaitGroup
	for _, cid := range []string{"d", "b", "c", "a"} {
		wg.Add(1)
		go func(cid string) {
			defer wg.Done()
			if _, err := q.Do(context.Background(), heldEventAt(cid, base.Add(offsets[cid])), log.fn); err != nil {
				t.Errorf("Do(%s) error = %v", cid, err)
			}
		}(cid)
		time.Sleep(5 * time.Millisecond)
	}
	wg.Wait()

	got := log.calls()
	want := []string{"a", "b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("calls = %v, want %v", got, want)
			break
		}
	}
}

func TestReorderQueue_ProcessingOutlivesCaller(t *testing.T) {
	q := newReorderQueue(50*time.Millisecond, time.Second)
	var log callLog

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := q.Do(ctx, heldEventAt("a", time.Now()), log.fn)
	if !errors.Is(err, domain.ErrDeadlineExceeded) {
		t.Fatalf("Do() error = %v, want ErrDeadlineExceeded", err)
	}

	deadline := time.Now().Add(time.Second)
	for len(log.calls()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(log.calls()) != 1 {
		t.Error("held event should be processed after the caller gave up")
	}
}
