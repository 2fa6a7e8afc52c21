// Package config stores geoattend-cli connection profiles in a YAML file,
// by default ~/.geoattend/cli.yaml.
//
// Flags and GEOATTEND_* environment variables override the active profile.
package config
