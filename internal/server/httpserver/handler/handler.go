package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yndnr/geoattend-go/internal/core/domain"
	"github.com/yndnr/geoattend-go/internal/core/service"
	"github.com/yndnr/geoattend-go/internal/telemetry/logger"
)

// DefaultRetryAfter is the Retry-After hint sent with 503 responses.
const DefaultRetryAfter = 2 * time.Second

// ZoneReloader re-reads zone definitions and drops cached tenant entries.
type ZoneReloader interface {
	ReloadZones(ctx context.Context) (tenants int, err error)
}

// ZoneReloaderFunc adapts a function to ZoneReloader.
type ZoneReloaderFunc func(ctx context.Context) (int, error)

// ReloadZones calls f(ctx).
func (f ZoneReloaderFunc) ReloadZones(ctx context.Context) (int, error) {
	return f(ctx)
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Config holds the dependencies of Handler.
type Config struct {
	Attendance *service.AttendanceService
	Auth       *service.AuthService

	// Zones is optional; without it zone reload answers 503.
	Zones ZoneReloader

	// Readiness checks run by GET /ready, keyed by component name.
	Readiness map[string]ReadinessCheck

	// RetryAfter overrides DefaultRetryAfter.
	RetryAfter time.Duration

	Logger *slog.Logger
}

// Handler is the main HTTP handler that routes requests to appropriate handlers.
type Handler struct {
	attendanceSvc *service.AttendanceService
	authSvc       *service.AuthService
	zones         ZoneReloader
	readiness     map[string]ReadinessCheck
	retryAfter    time.Duration
	logger        *slog.Logger
	mux           *http.ServeMux
}

// New creates a new Handler with the given services.
func New(cfg Config) *Handler {
	h := &Handler{
		attendanceSvc: cfg.Attendance,
		authSvc:       cfg.Auth,
		zones:         cfg.Zones,
		readiness:     cfg.Readiness,
		retryAfter:    cfg.RetryAfter,
		logger:        cfg.Logger,
		mux:           http.NewServeMux(),
	}
	if h.retryAfter <= 0 {
		h.retryAfter = DefaultRetryAfter
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}

	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)

	h.mux.HandleFunc("POST /v1/attendance/events", h.handleSubmitEvent)
	h.mux.HandleFunc("POST /v1/attendance/events/batch", h.handleSubmitBatch)
	h.mux.HandleFunc("POST /v1/attendance/events/{eventId}/override", h.handleOverride)
	h.mux.HandleFunc("GET /v1/attendance/events/{eventId}", h.handleGetEvent)
	h.mux.HandleFunc("GET /v1/attendance/sessions/{employeeId}", h.handleGetSessions)
	h.mux.HandleFunc("GET /v1/attendance/review", h.handleListForReview)

	h.mux.HandleFunc("POST /admin/v1/keys", h.handleCreateAPIKey)
	h.mux.HandleFunc("GET /admin/v1/keys", h.handleListAPIKeys)
	h.mux.HandleFunc("POST /admin/v1/keys/{keyId}/status", h.handleUpdateAPIKeyStatus)
	h.mux.HandleFunc("POST /admin/v1/zones/reload", h.handleReloadZones)
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := logger.RequestIDFromContext(r.Context())
	response := NewResponse(requestID, data)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode response", "request_id", requestID, "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	WriteError(w, r, status, code, message, details)
}

// WriteError writes an error envelope. It is shared with the middleware
// so that every error body has the same shape.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	response := NewErrorResponse(logger.RequestIDFromContext(r.Context()), code, message, details)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}

// WriteDomainError writes err using the status its code maps to.
// Retryable errors carry a Retry-After header.
func WriteDomainError(w http.ResponseWriter, r *http.Request, err error, retryAfter time.Duration) {
	var de *domain.DomainError
	if !errors.As(err, &de) {
		WriteError(w, r, http.StatusInternalServerError, domain.ErrInternalServer.Code, domain.ErrInternalServer.Message, nil)
		return
	}
	status := StatusForCode(de.Code)
	if status == http.StatusServiceUnavailable || status == http.StatusTooManyRequests || domain.IsRetryable(err) {
		if retryAfter <= 0 {
			retryAfter = DefaultRetryAfter
		}
		w.Header().Set("Retry-After", retryAfterSeconds(retryAfter))
	}
	var details any
	if de.Details != "" {
		details = de.Details
	}
	WriteError(w, r, status, de.Code, de.Message, details)
}

// handleServiceError converts service errors to HTTP responses.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.GetErrorCode(err)
	if code == "" || StatusForCode(code) >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed",
			"request_id", logger.RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	WriteDomainError(w, r, err, h.retryAfter)
}

// StatusForCode maps an error code to its HTTP status. The last four
// digits of a code begin with the status class.
func StatusForCode(code string) int {
	switch {
	case strings.HasSuffix(code, "-4040"), strings.HasSuffix(code, "-4041"):
		return http.StatusNotFound
	case strings.HasSuffix(code, "-4090"), strings.HasSuffix(code, "-4091"), strings.HasSuffix(code, "-4092"):
		return http.StatusConflict
	case strings.HasSuffix(code, "-4290"):
		return http.StatusTooManyRequests
	case strings.Contains(code, "-401"):
		return http.StatusUnauthorized
	case strings.Contains(code, "-403"):
		return http.StatusForbidden
	case strings.HasPrefix(code, "GA-ARG-"), strings.Contains(code, "-400"):
		return http.StatusBadRequest
	case strings.HasPrefix(code, "GA-SYS-503"), strings.HasPrefix(code, "GA-SYS-504"), code == domain.ErrStorageError.Code:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func retryAfterSeconds(d time.Duration) string {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

// decodeJSON reads a JSON body, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return domain.ErrBadRequest.WithDetails("request body too large")
		}
		return domain.ErrBadRequest.WithDetails("invalid request body: " + err.Error())
	}
	return nil
}

// tenantParam resolves the tenant of a query: the explicit parameter, or
// the key's own tenant.
func tenantParam(r *http.Request, key *domain.APIKey) string {
	if t := r.URL.Query().Get("tenantId"); t != "" {
		return t
	}
	if key != nil {
		return key.TenantID
	}
	return ""
}
