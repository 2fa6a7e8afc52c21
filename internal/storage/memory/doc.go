// Package memory provides in-memory storage for GeoAttend.
//
// Sessions, last fixes and idempotency results live in sharded maps.
// Commits take a per-employee stripe lock so that the session
// compare-and-swap, the fix and the result are written together.
// State is lost on restart; the server rebuilds it from the audit log.
package memory
