// Package config defines the geoattend-server configuration tree.
//
//   - spec.go: ServerConfig and its sections (koanf tags)
//   - default.go: default values
//   - verify.go: validation run after loading
//   - sanitize.go: copy with secrets masked, for logging
//   - convert.go: mapping onto service and storage configurations
//
// Values are loaded by internal/infra/confloader from a YAML file and
// GEOATTEND_* environment variables over Default().
package config
