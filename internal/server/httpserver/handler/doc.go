// Package handler provides HTTP request handlers for the attendance API.
//
// This package contains handlers for all HTTP endpoints:
//
//   - attendance.go: Event submission, batch flush, override, review
//   - session.go: Attendance session queries
//   - admin.go: API key and zone administration
//   - health.go: Health and readiness checks
//
// All handlers follow a consistent pattern:
//
//   - Parse and validate request
//   - Call domain service
//   - Format and return response
//   - Handle errors with appropriate HTTP status codes
package handler
