// Package keylock provides a fixed table of mutexes addressed by key.
//
// Keys are mapped to stripes with murmur3, so two different keys may share
// a stripe. That only costs throughput, never correctness: holders of the
// same key are always serialized. Callers that need several keys at once
// must use LockAll, which acquires stripes in index order.
package keylock

import (
	"context"
	"sort"
	"sync"

	"github.com/spaolacci/murmur3"
)

// DefaultStripes is the stripe count used by New.
const DefaultStripes = 256

// Table is a striped lock table. The zero value is not usable.
type Table struct {
	stripes []stripe
	mask    uint32
}

// stripe is a channel-based mutex so that waiters can honor a context.
type stripe chan struct{}

// New creates a table with DefaultStripes stripes.
func New() *Table {
	return NewWithStripes(DefaultStripes)
}

// NewWithStripes creates a table with n stripes, rounded up to a power of two.
func NewWithStripes(n int) *Table {
	size := 1
	for size < n {
		size <<= 1
	}
	t := &Table{
		stripes: make([]stripe, size),
		mask:    uint32(size - 1),
	}
	for i := range t.stripes {
		t.stripes[i] = make(stripe, 1)
	}
	return t
}

func (t *Table) index(key string) uint32 {
	return murmur3.Sum32([]byte(key)) & t.mask
}

// Lock blocks until the stripe for key is held and returns its unlock func.
func (t *Table) Lock(key string) func() {
	s := t.stripes[t.index(key)]
	s <- struct{}{}
	return func() { <-s }
}

// LockContext is Lock bounded by ctx. It returns ctx.Err() if the stripe
// could not be acquired in time.
func (t *Table) LockContext(ctx context.Context, key string) (func(), error) {
	s := t.stripes[t.index(key)]
	select {
	case s <- struct{}{}:
		return func() { <-s }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryLock acquires the stripe for key without blocking.
func (t *Table) TryLock(key string) (func(), bool) {
	s := t.stripes[t.index(key)]
	select {
	case s <- struct{}{}:
		return func() { <-s }, true
	default:
		return nil, false
	}
}

// LockAll acquires the stripes for all keys in a deadlock-free order.
func (t *Table) LockAll(keys ...string) func() {
	seen := make(map[uint32]struct{}, len(keys))
	idx := make([]int, 0, len(keys))
	for _, k := range keys {
		i := t.index(k)
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		idx = append(idx, int(i))
	}
	sort.Ints(idx)

	for _, i := range idx {
		t.stripes[i] <- struct{}{}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			for j := len(idx) - 1; j >= 0; j-- {
				<-t.stripes[idx[j]]
			}
		})
	}
}

// Stripes returns the number of stripes.
func (t *Table) Stripes() int {
	return len(t.stripes)
}
