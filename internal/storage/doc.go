// Package storage opens the session store and audit log selected by
// configuration.
//
// Backends:
//
//   - memory: sharded concurrent maps; rebuilt from the audit log at start
//   - badger: embedded, durable, single node
//   - redis: shared by several replicas
//
// The audit log (package audit) is always the durable record of decisions.
// Session stores hold derived state: sessions, last fixes and stored
// results for idempotent replay.
package storage
