package api

import (
	"encoding/json"
	"net/http"

	"github.com/reservepay/retryd/internal/core"
)

// ErrorResponse wraps a scheduler error for JSON serialization.
type ErrorResponse struct {
	Error *core.RetryError `json:"error"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes a structured error response.
func WriteError(w http.ResponseWriter, status int, err *core.RetryError) {
	WriteJSON(w, status, ErrorResponse{Error: err})
}

// statusForCode maps scheduler error codes to HTTP status codes.
func statusForCode(code string) int {
	switch code {
	case core.ErrCodeNotFound:
		return http.StatusNotFound
	case core.ErrCodeInvalidState, core.ErrCodeConflict:
		return http.StatusConflict
	case core.ErrCodeValidationError:
		return http.StatusUnprocessableEntity
	case core.ErrCodeInvalidRequest, core.ErrCodeConfigError:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func unauthorizedError() *core.RetryError {
	return &core.RetryError{
		Code:    core.ErrCodeInvalidRequest,
		Message: "Missing or invalid API key.",
	}
}

func forbiddenError() *core.RetryError {
	return &core.RetryError{
		Code:    core.ErrCodeInvalidRequest,
		Message: "Admin credentials required.",
	}
}

// HandleError maps an error to the appropriate HTTP status and writes it.
func HandleError(w http.ResponseWriter, err error) {
	if re, ok := err.(*core.RetryError); ok {
		WriteError(w, statusForCode(re.Code), re)
		return
	}
	WriteError(w, http.StatusInternalServerError, core.NewInternalError(err.Error()))
}
