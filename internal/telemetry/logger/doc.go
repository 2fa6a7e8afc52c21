// Package logger builds the process-wide slog logger.
//
// Output is JSON by default (text on request) with a level that can be
// changed at runtime. Every attribute passes through a redaction step that
// masks credentials: API key secrets, Authorization header values and
// admin override tokens never reach the log output.
//
// Request-scoped loggers travel in the context; L(ctx) returns one
// enriched with the request ID set by the HTTP middleware.
package logger
