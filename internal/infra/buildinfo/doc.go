// Package buildinfo exposes the version of geoattend binaries.
//
// Release builds inject the values with ldflags:
//
//	go build -ldflags "-X github.com/yndnr/geoattend-go/internal/infra/buildinfo.Version=v1.0.0 \
//	  -X github.com/yndnr/geoattend-go/internal/infra/buildinfo.Commit=$(git rev-parse --short HEAD)"
//
// Development builds fall back to the VCS data the Go toolchain embeds.
package buildinfo
