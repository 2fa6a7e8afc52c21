package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business domain error with a structured error code.
// Codes follow the format GA-<AREA>-<NNNN>; the last four digits start with
// the HTTP status class the error maps to.
type DomainError struct {
	Code    string // Error code (e.g., "GA-SESS-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// Wrap wraps an error with this domain error as the cause.
func (e *DomainError) Wrap(cause error) *DomainError {
	return e.WithCause(cause)
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Access errors (AUTH). Tenant mismatch is reported as 401, not as a
// validation decision.
var (
	// ErrAPIKeyMissing indicates no credential was provided.
	ErrAPIKeyMissing = NewDomainError("GA-AUTH-4010", "api key not provided")

	// ErrAPIKeyInvalid indicates the credential is invalid or does not exist.
	ErrAPIKeyInvalid = NewDomainError("GA-AUTH-4011", "invalid api key")

	// ErrAPIKeyDisabled indicates the credential has been disabled or expired.
	ErrAPIKeyDisabled = NewDomainError("GA-AUTH-4012", "api key disabled")

	// ErrUnauthorized indicates the credential is not scoped to the event's tenant.
	ErrUnauthorized = NewDomainError("GA-AUTH-4013", "credential not valid for tenant")

	// ErrOverrideTokenInvalid indicates an admin override token failed verification.
	ErrOverrideTokenInvalid = NewDomainError("GA-AUTH-4016", "invalid override token")

	// ErrPermissionDenied indicates insufficient permissions.
	ErrPermissionDenied = NewDomainError("GA-AUTH-4030", "permission denied")

	// ErrIPNotAllowed indicates the client IP is not in the allowlist.
	ErrIPNotAllowed = NewDomainError("GA-AUTH-4031", "ip not in allowlist")

	// ErrAPIKeyValidation indicates API key validation failed.
	ErrAPIKeyValidation = NewDomainError("GA-AUTH-4001", "api key validation failed")

	// ErrAPIKeyNotFound indicates the API key was not found.
	ErrAPIKeyNotFound = NewDomainError("GA-AUTH-4040", "api key not found")

	// ErrAPIKeyConflict indicates the API key ID already exists.
	ErrAPIKeyConflict = NewDomainError("GA-AUTH-4090", "api key id conflict")
)

// Event errors (GEO, EVNT). These reject malformed input before any
// decision is made.
var (
	// ErrInvalidCoordinate indicates latitude or longitude is out of range.
	ErrInvalidCoordinate = NewDomainError("GA-GEO-4001", "invalid coordinate")

	// ErrInvalidAccuracy indicates a negative or non-finite accuracy radius.
	ErrInvalidAccuracy = NewDomainError("GA-GEO-4002", "invalid accuracy")

	// ErrInvalidEvent indicates a required event field is missing or malformed.
	ErrInvalidEvent = NewDomainError("GA-EVNT-4001", "invalid attendance event")

	// ErrEventTooOld indicates the device timestamp is outside the reconciliation window.
	ErrEventTooOld = NewDomainError("GA-EVNT-4002", "event outside reconciliation window")

	// ErrEventInFuture indicates the device timestamp is ahead of server time beyond the allowed skew.
	ErrEventInFuture = NewDomainError("GA-EVNT-4003", "event timestamp in the future")

	// ErrEventNotFound indicates no audited event has the given ID.
	ErrEventNotFound = NewDomainError("GA-EVNT-4040", "event not found")

	// ErrOverrideNotApplicable indicates the event cannot be overridden.
	ErrOverrideNotApplicable = NewDomainError("GA-EVNT-4090", "event cannot be overridden")
)

// Session and zone errors.
var (
	// ErrSessionNotFound indicates no session exists for the key.
	ErrSessionNotFound = NewDomainError("GA-SESS-4040", "session not found")

	// ErrSessionVersionConflict indicates an optimistic lock conflict.
	ErrSessionVersionConflict = NewDomainError("GA-SESS-4091", "version conflict, please retry")

	// ErrInvalidTransition indicates the event is not allowed from the session's state.
	ErrInvalidTransition = NewDomainError("GA-SESS-4092", "invalid session transition")

	// ErrResultNotFound indicates no stored result exists for a client event ID.
	ErrResultNotFound = NewDomainError("GA-SESS-4041", "result not found")

	// ErrZoneValidation indicates zone data validation failed.
	ErrZoneValidation = NewDomainError("GA-ZONE-4001", "zone validation failed")
)

// System errors (SYS).
var (
	// ErrInternalServer indicates an internal server error.
	ErrInternalServer = NewDomainError("GA-SYS-5000", "internal server error")

	// ErrStorageError indicates a storage layer error.
	ErrStorageError = NewDomainError("GA-SYS-5001", "storage error")

	// ErrAuditLogUnavailable indicates the audit log could not be appended.
	ErrAuditLogUnavailable = NewDomainError("GA-SYS-5031", "audit log unavailable")

	// ErrZoneRegistryUnavailable indicates no zone data could be loaded for a tenant.
	ErrZoneRegistryUnavailable = NewDomainError("GA-SYS-5032", "zone registry unavailable")

	// ErrServiceUnavailable indicates the service is temporarily unavailable.
	ErrServiceUnavailable = NewDomainError("GA-SYS-5030", "service unavailable")

	// ErrDeadlineExceeded indicates the submission could not complete in time.
	ErrDeadlineExceeded = NewDomainError("GA-SYS-5040", "deadline exceeded")

	// ErrBadRequest indicates a malformed request.
	ErrBadRequest = NewDomainError("GA-SYS-4000", "bad request")

	// ErrRateLimited indicates too many requests.
	ErrRateLimited = NewDomainError("GA-SYS-4290", "too many requests")
)

// Argument errors (ARG).
var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("GA-ARG-1001", "invalid argument")

	// ErrMissingArgument indicates a required argument is missing.
	ErrMissingArgument = NewDomainError("GA-ARG-1002", "missing required argument")
)

// Admin errors (ADMIN).
var (
	// ErrAdminPermissionDenied indicates admin role is required.
	ErrAdminPermissionDenied = NewDomainError("GA-ADMIN-4030", "admin role required")

	// ErrAdminIPNotAllowed indicates the admin IP is not in allowlist.
	ErrAdminIPNotAllowed = NewDomainError("GA-ADMIN-4031", "admin ip not allowed")
)

// IsRetryable reports whether err is an infrastructure failure the caller
// may retry with the same client event ID.
func IsRetryable(err error) bool {
	switch GetErrorCode(err) {
	case ErrStorageError.Code, ErrServiceUnavailable.Code, ErrAuditLogUnavailable.Code,
		ErrZoneRegistryUnavailable.Code, ErrDeadlineExceeded.Code, ErrSessionVersionConflict.Code:
		return true
	}
	return false
}
