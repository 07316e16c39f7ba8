package api

import (
	"net/http"
	"time"

	"github.com/reservepay/retryd/internal/core"
)

// AnalyticsHandler handles retry analytics endpoints.
type AnalyticsHandler struct {
	service core.Service
}

// NewAnalyticsHandler creates a new AnalyticsHandler.
func NewAnalyticsHandler(service core.Service) *AnalyticsHandler {
	return &AnalyticsHandler{service: service}
}

// Get handles GET /retry/v1/analytics?from=&to=
// Defaults to the trailing 24 hours when the window is omitted.
func (h *AnalyticsHandler) Get(w http.ResponseWriter, r *http.Request) {
	to := time.Now()
	from := to.Add(-24 * time.Hour)

	if raw := r.URL.Query().Get("from"); raw != "" {
		t, err := parseTimestamp(raw)
		if err != nil {
			WriteError(w, http.StatusBadRequest, core.NewInvalidRequestError("Invalid 'from' timestamp.", nil))
			return
		}
		from = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, err := parseTimestamp(raw)
		if err != nil {
			WriteError(w, http.StatusBadRequest, core.NewInvalidRequestError("Invalid 'to' timestamp.", nil))
			return
		}
		to = t
	}
	if to.Before(from) {
		WriteError(w, http.StatusBadRequest, core.NewInvalidRequestError("'to' must not be before 'from'.", nil))
		return
	}

	result, err := h.service.GetAnalytics(r.Context(), from, to)
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"from":      core.FormatTime(from),
		"to":        core.FormatTime(to),
		"analytics": result,
	})
}

func parseTimestamp(raw string) (time.Time, error) {
	if t, err := core.ParseTime(raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}
