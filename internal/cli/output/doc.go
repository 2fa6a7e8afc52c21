// Package output renders geoattend-cli results as a table, JSON or YAML.
//
// Table rendering reads column names from json tags, so the server DTOs
// decoded by the CLI print without per-command layouts. Fields tagged
// `table:"wide"` appear only with --wide; `table:"-"` never appears.
package output
