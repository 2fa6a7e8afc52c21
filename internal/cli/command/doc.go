// Package command defines the geoattend-cli commands on urfave/cli/v2.
//
// Remote commands build an HTTP client from the active profile, the global
// flags and GEOATTEND_* variables, call the server, and render the result
// with the --output formatter. Local commands (geo, event token, config)
// need no server.
package command
