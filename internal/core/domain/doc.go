// Package domain defines the core domain models for geoattend.
//
// Domain models are pure value objects and entities without any
// IO dependencies or framework coupling. This package contains:
//
//   - Zone and TenantPolicy: tenant geofences and enforcement settings
//   - AttendanceEvent: one check-in or check-out location sample
//   - AttendanceSession: the per-employee per-day state machine
//   - ValidationResult: the decision returned for an event
//   - AuditRecord: one append-only audit log entry
//   - APIKey: tenant-scoped credentials
//   - Errors: domain error codes
//
// Mutable entities carry a Version for optimistic locking.
package domain
