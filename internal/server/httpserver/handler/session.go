package handler

import (
	"net/http"

	"github.com/yndnr/geoattend-go/internal/core/domain"
	"github.com/yndnr/geoattend-go/internal/core/service"
)

// handleGetSessions handles GET /v1/attendance/sessions/{employeeId}.
//
// With ?date=YYYY-MM-DD it returns that day's session (NotStarted when the
// day has no events). With ?from=&to= it lists stored sessions in range.
func (h *Handler) handleGetSessions(w http.ResponseWriter, r *http.Request) {
	key := APIKeyFromContext(r.Context())
	employeeID := r.PathValue("employeeId")
	if employeeID == "" {
		h.writeError(w, r, http.StatusBadRequest, domain.ErrMissingArgument.Code, "employeeId is required", nil)
		return
	}

	query := r.URL.Query()
	tenantID := tenantParam(r, key)

	if date := query.Get("date"); date != "" {
		session, err := h.attendanceSvc.GetSession(r.Context(), &service.GetSessionRequest{
			Principal: key,
			Key: domain.SessionKey{
				TenantID:   tenantID,
				EmployeeID: employeeID,
				Date:       date,
			},
		})
		if err != nil {
			h.handleServiceError(w, r, err)
			return
		}
		h.writeJSON(w, r, http.StatusOK, newSessionResponse(session))
		return
	}

	from, to := query.Get("from"), query.Get("to")
	if from == "" || to == "" {
		h.writeError(w, r, http.StatusBadRequest, domain.ErrMissingArgument.Code, "date or from/to is required", nil)
		return
	}

	sessions, err := h.attendanceSvc.ListSessions(r.Context(), &service.ListSessionsRequest{
		Principal:  key,
		TenantID:   tenantID,
		EmployeeID: employeeID,
		From:       from,
		To:         to,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	items := make([]SessionResponse, len(sessions))
	for i, s := range sessions {
		items[i] = newSessionResponse(s)
	}
	h.writeJSON(w, r, http.StatusOK, ListSessionsResponse{Items: items, Total: len(items)})
}
