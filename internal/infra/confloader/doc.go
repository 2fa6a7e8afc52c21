// Package confloader loads configuration with koanf and watches files for
// changes.
//
// Priority (highest to lowest):
//
//  1. Command-line flags (LoadMap)
//  2. Environment variables (GEOATTEND_ prefix)
//  3. Configuration file (YAML)
//  4. Default values (the target struct as passed in)
//
// Environment variables map to keys by lowercasing and replacing "_" with
// ".". A doubled "__" stands for a literal underscore inside a key:
//
//	GEOATTEND_SERVER_HTTP_ADDRESS    -> server.http.address
//	GEOATTEND_STORAGE_DATA__DIR      -> storage.data_dir
package confloader
