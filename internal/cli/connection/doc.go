// Package connection is the HTTP client geoattend-cli uses to reach a
// geoattend-server.
//
// Responses use the server envelope {code, message, request_id, data};
// ParseResponse unwraps data on success and returns an *APIError carrying
// the error code and Retry-After hint otherwise.
package connection
