// Package httpserver provides the HTTP/HTTPS server for the attendance API.
//
// This package implements the primary external API using stdlib net/http:
//
//   - Attendance endpoints: /v1/attendance/events, /v1/attendance/sessions/{employeeId}
//   - Admin endpoints: /admin/v1/keys, /admin/v1/zones/reload
//   - Health endpoints: /health, /ready, /metrics
//
// Features:
//
//   - TLS support with automatic certificate reload and optional client certificates
//   - Middleware chain: Auth, RateLimit, Audit, RequestID
//   - Graceful shutdown with configurable timeout
//   - Prometheus metrics integration
package httpserver
