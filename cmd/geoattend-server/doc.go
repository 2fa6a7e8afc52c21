// Package main provides the entry point for geoattend-server.
//
// The server validates geofenced clock-in/clock-out events and serves:
//
//   - the attendance API under /api/v1 (submit, batch, override, sessions)
//   - the admin API under /admin/v1 (API keys, zone reload)
//   - /health, /ready and /metrics
//
// Usage:
//
//	geoattend-server [flags]
//	geoattend-server -config /etc/geoattend/server.yaml
//
// Environment variables prefixed with GEOATTEND_ override the file.
package main
