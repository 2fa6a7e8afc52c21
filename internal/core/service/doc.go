// Package service provides the attendance domain services.
//
// Services contain the business rules and orchestrate domain models. They
// define interfaces for their storage dependencies so that memory, badger
// and redis backends can be swapped, and so tests can use fakes.
//
// This package contains:
//
//   - ZoneRegistry: cached per-tenant zones and policy with bounded refresh
//   - SpoofDetector: velocity, mock-location and accuracy heuristics
//   - ValidationEngine: zone matching under location uncertainty
//   - OverrideVerifier: admin-issued override tokens
//   - AttendanceService: submit, batch submit, override, reads and recovery
//   - AuthService: API key authentication, authorization and rate limiting
//
// All services are safe for concurrent use.
package service
