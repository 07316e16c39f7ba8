package api

import (
	"net/http"

	"github.com/reservepay/retryd/internal/core"
)

// SystemHandler handles health and policy endpoints.
type SystemHandler struct {
	service core.Service
}

// NewSystemHandler creates a new SystemHandler.
func NewSystemHandler(service core.Service) *SystemHandler {
	return &SystemHandler{service: service}
}

// Health handles GET /retry/v1/health
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"version": core.Version,
	})
}

// Policies handles GET /retry/v1/policies
func (h *SystemHandler) Policies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.service.ListPolicies(r.Context())
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"policies": policies})
}
