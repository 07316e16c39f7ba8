package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/reservepay/retryd/internal/core"
)

// ItemHandler handles retry queue item endpoints.
type ItemHandler struct {
	service core.Service
}

// NewItemHandler creates a new ItemHandler.
func NewItemHandler(service core.Service) *ItemHandler {
	return &ItemHandler{service: service}
}

// Create handles POST /retry/v1/items
func (h *ItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req core.CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, core.NewInvalidRequestError("Invalid JSON in request body.", nil))
		return
	}

	item, err := h.service.CreateItem(r.Context(), &req)
	if err != nil {
		HandleError(w, err)
		return
	}

	w.Header().Set("Location", "/retry/v1/items/"+item.ID)
	WriteJSON(w, http.StatusCreated, map[string]any{"item": item})
}

// Get handles GET /retry/v1/items/{id}
func (h *ItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	item, err := h.service.GetItem(r.Context(), id)
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"item": item})
}

// List handles GET /retry/v1/items?user_id=&limit=&offset=
func (h *ItemHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		WriteError(w, http.StatusBadRequest, core.NewInvalidRequestError("user_id query parameter is required.", nil))
		return
	}

	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	items, err := h.service.GetQueueForUser(r.Context(), userID, limit, offset)
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"items":  items,
		"limit":  limit,
		"offset": offset,
	})
}

// History handles GET /retry/v1/items/{id}/history
func (h *ItemHandler) History(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	attempts, err := h.service.GetHistory(r.Context(), id)
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"attempts": attempts})
}

// ManualRetry handles POST /retry/v1/items/{id}/retry
func (h *ItemHandler) ManualRetry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	adminID := r.Header.Get("X-Admin-Id")

	success, err := h.service.ManualRetry(r.Context(), id, adminID)
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"item_id": id,
		"success": success,
	})
}

// RunCycle handles POST /retry/v1/cycle — for external schedulers/ops.
func (h *ItemHandler) RunCycle(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.RunBatchCycle(r.Context())
	if err != nil {
		HandleError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"cycle": result})
}

func queryInt(r *http.Request, name string, defaultVal int) int {
	if raw := r.URL.Query().Get(name); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			return n
		}
	}
	return defaultVal
}
