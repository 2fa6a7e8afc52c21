package handler

import (
	"net/http"
	"time"

	"github.com/yndnr/geoattend-go/internal/core/domain"
	"github.com/yndnr/geoattend-go/internal/core/service"
)

// handleCreateAPIKey handles POST /admin/v1/keys.
func (h *Handler) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req CreateAPIKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	if req.Name == "" {
		h.writeError(w, r, http.StatusBadRequest, domain.ErrMissingArgument.Code, "name is required", nil)
		return
	}
	if !domain.IsValidRole(req.Role) {
		h.writeError(w, r, http.StatusBadRequest, domain.ErrInvalidArgument.Code,
			"invalid role, must be one of: metrics, device, tenant_admin, admin", nil)
		return
	}

	var createdBy string
	if key := APIKeyFromContext(r.Context()); key != nil {
		createdBy = key.KeyID
	}

	resp, err := h.authSvc.CreateAPIKey(r.Context(), &service.CreateAPIKeyRequest{
		Name:        req.Name,
		Role:        req.Role,
		TenantID:    req.TenantID,
		Description: req.Description,
		RateLimit:   req.RateLimit,
		Allowlist:   req.Allowlist,
		CreatedBy:   createdBy,
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusCreated, CreateAPIKeyResponse{
		KeyID:     resp.Key.KeyID,
		Secret:    resp.Secret,
		Name:      resp.Key.Name,
		Role:      string(resp.Key.Role),
		TenantID:  resp.Key.TenantID,
		CreatedAt: resp.Key.CreatedAtTime(),
	})
}

// handleListAPIKeys handles GET /admin/v1/keys.
func (h *Handler) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	keys, err := h.authSvc.ListAPIKeys(r.Context(), query.Get("tenantId"), query.Get("role"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	items := make([]APIKeyResponse, len(keys))
	for i, key := range keys {
		items[i] = newAPIKeyResponse(key)
	}

	h.writeJSON(w, r, http.StatusOK, ListAPIKeysResponse{Keys: items})
}

// handleUpdateAPIKeyStatus handles POST /admin/v1/keys/{keyId}/status.
func (h *Handler) handleUpdateAPIKeyStatus(w http.ResponseWriter, r *http.Request) {
	keyID := r.PathValue("keyId")
	if !domain.IsValidAPIKeyID(keyID) {
		h.writeError(w, r, http.StatusBadRequest, domain.ErrInvalidArgument.Code, "invalid key id", nil)
		return
	}

	var req UpdateAPIKeyStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	if err := h.authSvc.SetAPIKeyStatus(r.Context(), keyID, req.Enabled); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]bool{"success": true})
}

// handleReloadZones handles POST /admin/v1/zones/reload.
func (h *Handler) handleReloadZones(w http.ResponseWriter, r *http.Request) {
	if h.zones == nil {
		h.handleServiceError(w, r, domain.ErrServiceUnavailable.WithDetails("zone reload not configured"))
		return
	}

	n, err := h.zones.ReloadZones(r.Context())
	if err != nil {
		if domain.GetErrorCode(err) == "" {
			err = domain.ErrZoneValidation.WithDetails(err.Error()).WithCause(err)
		}
		h.handleServiceError(w, r, err)
		return
	}

	h.logger.Info("zones reloaded", "tenants", n,
		"key_id", keyIDOf(APIKeyFromContext(r.Context())))
	h.writeJSON(w, r, http.StatusOK, ReloadZonesResponse{
		Tenants:    n,
		ReloadedAt: time.Now().UTC(),
	})
}

func keyIDOf(k *domain.APIKey) string {
	if k == nil {
		return ""
	}
	return k.KeyID
}
