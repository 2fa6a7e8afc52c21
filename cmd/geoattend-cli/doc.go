// Package main provides the entry point for geoattend-cli.
//
// The CLI tool provides command-line access to a geoattend server for:
//
//   - Submitting single and batch attendance events
//   - Supervisor overrides and the review queue
//   - Session queries
//   - API key management
//   - Health checks and zone reloads
//
// Usage:
//
//	geoattend-cli [command] [flags]
//	geoattend-cli event submit --employee e-17 --lat 52.52 --lng 13.405 --accuracy 8
//	geoattend-cli session get e-17 --date 2026-03-02 -o json
package main
