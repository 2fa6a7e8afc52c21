// Package cmap provides a concurrent map keyed by strings.
//
// The map is split into a power-of-two number of shards, each guarded by
// its own RWMutex, so writers to unrelated keys do not contend. Shards are
// picked with murmur3, the same hash used by pkg/keylock, which keeps a
// store's map shard and lock stripe aligned for a given key.
//
// Values that carry an optimistic-lock version can be replaced with
// CompareAndSwap.
//
// Usage:
//
//	m := cmap.New[*domain.AttendanceSession]()
//	m.Set(key.String(), session)
//	s, ok := m.Get(key.String())
package cmap
