// Package shutdown coordinates graceful termination of geoattend-server.
//
// Components register hooks with OnShutdown in start-up order; on SIGINT,
// SIGTERM or an explicit Trigger the hooks run in reverse order under a
// shared timeout, so the HTTP listener stops before the stores it writes to
// are closed.
package shutdown
