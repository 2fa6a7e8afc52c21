package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/yndnr/geoattend-go/internal/core/domain"
	"github.com/yndnr/geoattend-go/internal/core/service"
)

// handleSubmitEvent handles POST /v1/attendance/events.
func (h *Handler) handleSubmitEvent(w http.ResponseWriter, r *http.Request) {
	key := APIKeyFromContext(r.Context())

	var req EventRequest
	if err := decodeJSON(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	event, err := req.toDomain(key)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	resp, err := h.attendanceSvc.Submit(r.Context(), &service.SubmitRequest{
		Principal: key,
		Event:     event,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, resp.Result)
}

// handleSubmitBatch handles POST /v1/attendance/events/batch.
//
// Malformed events are reported per item; the request fails as a whole
// only when it cannot be parsed or authorized.
func (h *Handler) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	key := APIKeyFromContext(r.Context())

	var req BatchRequest
	if err := decodeJSON(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if len(req.Events) == 0 {
		h.writeError(w, r, http.StatusBadRequest, domain.ErrMissingArgument.Code, "events is required", nil)
		return
	}

	out := BatchResponse{Items: make([]BatchItemResponse, len(req.Events))}
	var (
		events  []*domain.AttendanceEvent
		indexes []int
	)
	for i := range req.Events {
		out.Items[i] = BatchItemResponse{Index: i, ClientEventID: req.Events[i].ClientEventID}
		e, err := req.Events[i].toDomain(key)
		if err != nil {
			out.Items[i].Error = errorBody(err)
			continue
		}
		events = append(events, e)
		indexes = append(indexes, i)
	}

	if len(events) > 0 {
		resp, err := h.attendanceSvc.SubmitBatch(r.Context(), &service.SubmitBatchRequest{
			Principal: key,
			Events:    events,
		})
		if err != nil {
			h.handleServiceError(w, r, err)
			return
		}
		for j, item := range resp.Items {
			i := indexes[j]
			if item.Err != nil {
				out.Items[i].Error = errorBody(item.Err)
				continue
			}
			out.Items[i].Result = item.Result
		}
	}

	for _, item := range out.Items {
		switch {
		case item.Error != nil:
			out.Failed++
		case item.Result.Decision.IsAccepted():
			out.Accepted++
		default:
			out.Rejected++
		}
	}

	h.writeJSON(w, r, http.StatusOK, out)
}

// handleOverride handles POST /v1/attendance/events/{eventId}/override.
func (h *Handler) handleOverride(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventId")
	if !domain.IsValidEventID(eventID) {
		h.writeError(w, r, http.StatusBadRequest, domain.ErrInvalidArgument.Code, "invalid event id", nil)
		return
	}

	var req OverrideRequest
	if err := decodeJSON(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if req.Reason == "" {
		h.writeError(w, r, http.StatusBadRequest, domain.ErrMissingArgument.Code, "reason is required", nil)
		return
	}

	resp, err := h.attendanceSvc.Override(r.Context(), &service.OverrideRequest{
		Principal: APIKeyFromContext(r.Context()),
		EventID:   eventID,
		Reason:    req.Reason,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, resp.Result)
}

// handleGetEvent handles GET /v1/attendance/events/{eventId}.
func (h *Handler) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventId")
	if !domain.IsValidEventID(eventID) {
		h.writeError(w, r, http.StatusBadRequest, domain.ErrInvalidArgument.Code, "invalid event id", nil)
		return
	}

	rec, err := h.attendanceSvc.GetEvent(r.Context(), APIKeyFromContext(r.Context()), eventID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, newAuditRecordResponse(rec))
}

// handleListForReview handles GET /v1/attendance/review.
func (h *Handler) handleListForReview(w http.ResponseWriter, r *http.Request) {
	key := APIKeyFromContext(r.Context())
	query := r.URL.Query()

	limit := 0
	if s := query.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			h.writeError(w, r, http.StatusBadRequest, domain.ErrInvalidArgument.Code, "limit must be a non-negative integer", nil)
			return
		}
		limit = n
	}

	recs, err := h.attendanceSvc.ListForReview(r.Context(), &service.ListForReviewRequest{
		Principal:  key,
		TenantID:   tenantParam(r, key),
		EmployeeID: query.Get("employeeId"),
		Limit:      limit,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	items := make([]AuditRecordResponse, len(recs))
	for i, rec := range recs {
		items[i] = newAuditRecordResponse(rec)
	}
	h.writeJSON(w, r, http.StatusOK, ReviewResponse{Items: items, Total: len(items)})
}

func errorBody(err error) *ErrorBody {
	var de *domain.DomainError
	if errors.As(err, &de) {
		return &ErrorBody{Code: de.Code, Message: de.Message, Details: de.Details}
	}
	return &ErrorBody{Code: domain.ErrInternalServer.Code, Message: domain.ErrInternalServer.Message}
}
