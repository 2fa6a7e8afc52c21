// Package tlsroots builds the TLS configuration of the HTTP listener and
// of the CLI client.
//
// The server side loads its key pair through a CertWatcher, which reloads
// the pair when either file changes on disk, and optionally verifies
// client certificates against a CA bundle. The client side trusts the
// system roots plus an optional CA bundle.
package tlsroots
