package handler

import (
	"time"

	"github.com/yndnr/geoattend-go/internal/core/domain"
)

// Response is the standard API response envelope.
// All JSON responses use this format (except /metrics which uses Prometheus format).
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// ErrorBody is an error embedded in a partial-success payload.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// EventRequest is one attendance event as sent by a device.
type EventRequest struct {
	TenantID         string    `json:"tenantId,omitempty"`
	EmployeeID       string    `json:"employeeId"`
	ClientEventID    string    `json:"clientEventId"`
	Type             string    `json:"type"`
	Lat              *float64  `json:"lat"`
	Lng              *float64  `json:"lng"`
	AccuracyMeters   float64   `json:"accuracyMeters"`
	DeviceTimestamp  time.Time `json:"deviceTimestamp"`
	DeviceID         string    `json:"deviceId,omitempty"`
	MockLocationFlag bool      `json:"mockLocationFlag,omitempty"`
	OverrideToken    string    `json:"overrideToken,omitempty"`
}

// toDomain converts the request, defaulting the tenant to the key's own.
func (e *EventRequest) toDomain(key *domain.APIKey) (*domain.AttendanceEvent, error) {
	if e.Lat == nil || e.Lng == nil {
		return nil, domain.ErrInvalidCoordinate.WithDetails("lat and lng are required")
	}
	tenantID := e.TenantID
	if tenantID == "" && key != nil {
		tenantID = key.TenantID
	}
	return &domain.AttendanceEvent{
		TenantID:         tenantID,
		EmployeeID:       e.EmployeeID,
		ClientEventID:    e.ClientEventID,
		Type:             domain.EventType(e.Type),
		Lat:              *e.Lat,
		Lng:              *e.Lng,
		AccuracyMeters:   e.AccuracyMeters,
		DeviceTimestamp:  e.DeviceTimestamp,
		DeviceID:         e.DeviceID,
		MockLocationFlag: e.MockLocationFlag,
		OverrideToken:    e.OverrideToken,
	}, nil
}

// BatchRequest is the request body for POST /v1/attendance/events/batch.
type BatchRequest struct {
	Events []EventRequest `json:"events"`
}

// BatchItemResponse is the outcome of one batched event.
type BatchItemResponse struct {
	Index         int                      `json:"index"`
	ClientEventID string                   `json:"clientEventId"`
	Result        *domain.ValidationResult `json:"result,omitempty"`
	Error         *ErrorBody               `json:"error,omitempty"`
}

// BatchResponse is the response body for POST /v1/attendance/events/batch.
type BatchResponse struct {
	Items    []BatchItemResponse `json:"items"`
	Accepted int                 `json:"accepted"`
	Rejected int                 `json:"rejected"`
	Failed   int                 `json:"failed"`
}

// OverrideRequest is the request body for POST /v1/attendance/events/{eventId}/override.
type OverrideRequest struct {
	Reason string `json:"reason"`
}

// EventResponse represents a stored event in API responses.
type EventResponse struct {
	EventID          string    `json:"eventId"`
	TenantID         string    `json:"tenantId"`
	EmployeeID       string    `json:"employeeId"`
	ClientEventID    string    `json:"clientEventId"`
	Type             string    `json:"type"`
	Lat              float64   `json:"lat"`
	Lng              float64   `json:"lng"`
	AccuracyMeters   float64   `json:"accuracyMeters"`
	DeviceTimestamp  time.Time `json:"deviceTimestamp"`
	ServerReceivedAt time.Time `json:"serverReceivedAt"`
	DeviceID         string    `json:"deviceId,omitempty"`
	MockLocationFlag bool      `json:"mockLocationFlag"`
}

func newEventResponse(e *domain.AttendanceEvent) *EventResponse {
	if e == nil {
		return nil
	}
	return &EventResponse{
		EventID:          e.EventID,
		TenantID:         e.TenantID,
		EmployeeID:       e.EmployeeID,
		ClientEventID:    e.ClientEventID,
		Type:             string(e.Type),
		Lat:              e.Lat,
		Lng:              e.Lng,
		AccuracyMeters:   e.AccuracyMeters,
		DeviceTimestamp:  e.DeviceTimestamp,
		ServerReceivedAt: e.ServerReceivedAt,
		DeviceID:         e.DeviceID,
		MockLocationFlag: e.MockLocationFlag,
	}
}

// AuditRecordResponse represents an audit record in API responses.
type AuditRecordResponse struct {
	Seq        uint64                   `json:"seq"`
	Kind       string                   `json:"kind"`
	EventID    string                   `json:"eventId"`
	Event      *EventResponse           `json:"event"`
	Result     *domain.ValidationResult `json:"result"`
	Actor      string                   `json:"actor"`
	Reason     string                   `json:"reason,omitempty"`
	RecordedAt time.Time                `json:"recordedAt"`
}

func newAuditRecordResponse(rec *domain.AuditRecord) AuditRecordResponse {
	return AuditRecordResponse{
		Seq:        rec.Seq,
		Kind:       string(rec.Kind),
		EventID:    rec.EventID,
		Event:      newEventResponse(rec.Event),
		Result:     rec.Result,
		Actor:      rec.Actor,
		Reason:     rec.Reason,
		RecordedAt: rec.RecordedAt,
	}
}

// ReviewResponse is the response body for GET /v1/attendance/review.
type ReviewResponse struct {
	Items []AuditRecordResponse `json:"items"`
	Total int                   `json:"total"`
}

// SessionResponse represents an attendance session in API responses.
type SessionResponse struct {
	TenantID        string     `json:"tenantId"`
	EmployeeID      string     `json:"employeeId"`
	Date            string     `json:"date"`
	State           string     `json:"state"`
	CheckInEventID  string     `json:"checkInEventId,omitempty"`
	CheckOutEventID string     `json:"checkOutEventId,omitempty"`
	OpenedAt        *time.Time `json:"openedAt,omitempty"`
	ClosedAt        *time.Time `json:"closedAt,omitempty"`
	Version         uint64     `json:"version"`
}

func newSessionResponse(s *domain.AttendanceSession) SessionResponse {
	return SessionResponse{
		TenantID:        s.TenantID,
		EmployeeID:      s.EmployeeID,
		Date:            s.Date,
		State:           string(s.State),
		CheckInEventID:  s.CheckInEventID,
		CheckOutEventID: s.CheckOutEventID,
		OpenedAt:        millisPtr(s.OpenedAt),
		ClosedAt:        millisPtr(s.ClosedAt),
		Version:         s.Version,
	}
}

func millisPtr(ms int64) *time.Time {
	if ms == 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

// ListSessionsResponse is the response body for a session range query.
type ListSessionsResponse struct {
	Items []SessionResponse `json:"items"`
	Total int               `json:"total"`
}

// CreateAPIKeyRequest is the request body for POST /admin/v1/keys.
type CreateAPIKeyRequest struct {
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	TenantID    string   `json:"tenantId,omitempty"`
	Description string   `json:"description,omitempty"`
	RateLimit   int      `json:"rateLimit,omitempty"`
	Allowlist   []string `json:"allowlist,omitempty"`
}

// CreateAPIKeyResponse is the response body for POST /admin/v1/keys.
// The secret is returned only here.
type CreateAPIKeyResponse struct {
	KeyID     string    `json:"keyId"`
	Secret    string    `json:"secret"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	TenantID  string    `json:"tenantId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// APIKeyResponse represents an API key in list responses (without secret).
type APIKeyResponse struct {
	KeyID       string     `json:"keyId"`
	Name        string     `json:"name"`
	Role        string     `json:"role"`
	TenantID    string     `json:"tenantId,omitempty"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status"`
	RateLimit   int        `json:"rateLimit"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastUsedAt  *time.Time `json:"lastUsedAt,omitempty"`
}

func newAPIKeyResponse(k *domain.APIKey) APIKeyResponse {
	return APIKeyResponse{
		KeyID:       k.KeyID,
		Name:        k.Name,
		Role:        string(k.Role),
		TenantID:    k.TenantID,
		Description: k.Description,
		Status:      string(k.Status),
		RateLimit:   k.RateLimit,
		CreatedAt:   k.CreatedAtTime(),
		LastUsedAt:  millisPtr(k.LastUsed),
	}
}

// ListAPIKeysResponse is the response body for GET /admin/v1/keys.
type ListAPIKeysResponse struct {
	Keys []APIKeyResponse `json:"keys"`
}

// UpdateAPIKeyStatusRequest is the request body for POST /admin/v1/keys/{keyId}/status.
type UpdateAPIKeyStatusRequest struct {
	Enabled bool `json:"enabled"`
}

// ReloadZonesResponse is the response body for POST /admin/v1/zones/reload.
type ReloadZonesResponse struct {
	Tenants    int       `json:"tenants"`
	ReloadedAt time.Time `json:"reloadedAt"`
}
