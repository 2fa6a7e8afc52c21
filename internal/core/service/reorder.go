package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yndnr/geoattend-go/internal/core/domain"
	"github.com/yndnr/geoattend-go/pkg/keylock"
)

type processFunc func(ctx context.Context, e *domain.AttendanceEvent) (*domain.ValidationResult, error)

type outcome struct {
	result *domain.ValidationResult
	err    error
}

type heldEvent struct {
	ctx   context.Context
	event *domain.AttendanceEvent
	fn    processFunc
	done  chan outcome
}

type heldGroup struct {
	events []*heldEvent
}

// reorderQueue serializes processing per employee and, when hold > 0,
// collects events for the same employee that arrive within the hold window
// and applies them in device-timestamp order. Devices flushing an offline
// buffer tend to send a burst of requests in arbitrary order; holding them
// briefly lets a CheckIn captured before a CheckOut be applied first.
type reorderQueue struct {
	hold           time.Duration
	processTimeout time.Duration
	employees      *keylock.Table

	mu      sync.Mutex
	pending map[string]*heldGroup
}

func newReorderQueue(hold, processTimeout time.Duration) *reorderQueue {
	return &reorderQueue{
		hold:           hold,
		processTimeout: processTimeout,
		employees:      keylock.New(),
		pending:        make(map[string]*heldGroup),
	}
}

// Do processes e through fn in employee order. The caller waits at most
// until ctx ends; once an event has been handed to fn it is processed to
// completion even if the caller gives up, so a retry with the same client
// event ID finds the stored result.
func (q *reorderQueue) Do(ctx context.Context, e *domain.AttendanceEvent, fn processFunc) (*domain.ValidationResult, error) {
	empKey := domain.EmployeeKey(e.TenantID, e.EmployeeID)

	if q.hold <= 0 {
		unlock, err := q.employees.LockContext(ctx, empKey)
		if err != nil {
			return nil, domain.ErrDeadlineExceeded.WithCause(err)
		}
		defer unlock()
		return fn(ctx, e)
	}

	h := &heldEvent{ctx: ctx, event: e, fn: fn, done: make(chan outcome, 1)}

	q.mu.Lock()
	g, ok := q.pending[empKey]
	if !ok {
		g = &heldGroup{}
		q.pending[empKey] = g
		time.AfterFunc(q.hold, func() { q.flush(empKey) })
	}
	g.events = append(g.events, h)
	q.mu.Unlock()

	select {
	case out := <-h.done:
		return out.result, out.err
	case <-ctx.Done():
		return nil, domain.ErrDeadlineExceeded.WithCause(ctx.Err())
	}
}

// DoOrdered processes a batch for one employee in device-timestamp order
// without holding. Outcomes are returned in the order of events.
func (q *reorderQueue) DoOrdered(ctx context.Context, empKey string, events []*domain.AttendanceEvent, fn processFunc) []outcome {
	idx := make([]int, len(events))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return events[idx[a]].DeviceTimestamp.Before(events[idx[b]].DeviceTimestamp)
	})

	out := make([]outcome, len(events))
	unlock, err := q.employees.LockContext(ctx, empKey)
	if err != nil {
		for i := range out {
			out[i].err = domain.ErrDeadlineExceeded.WithCause(err)
		}
		return out
	}
	defer unlock()

	for _, i := range idx {
		r, err := fn(ctx, events[i])
		out[i] = outcome{result: r, err: err}
	}
	return out
}

func (q *reorderQueue) flush(empKey string) {
	q.mu.Lock()
	g := q.pending[empKey]
	delete(q.pending, empKey)
	q.mu.Unlock()
	if g == nil {
		return
	}

	sort.SliceStable(g.events, func(a, b int) bool {
		ea, eb := g.events[a].event, g.events[b].event
		if !ea.DeviceTimestamp.Equal(eb.DeviceTimestamp) {
			return ea.DeviceTimestamp.Before(eb.DeviceTimestamp)
		}
		return ea.ServerReceivedAt.Before(eb.ServerReceivedAt)
	})

	unlock := q.employees.Lock(empKey)
	defer unlock()

	for _, h := range g.events {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(h.ctx), q.processTimeout)
		r, err := func() (*domain.ValidationResult, error) {
			defer cancel()
			return h.fn(ctx, h.event)
		}()
		h.done <- outcome{result: r, err: err}
	}
}
