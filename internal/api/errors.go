package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// ErrorCode represents machine-readable error codes.
type ErrorCode string

const (
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeBadRequest   ErrorCode = "BAD_REQUEST"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeInvalidJSON  ErrorCode = "INVALID_JSON"
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeNotPermitted ErrorCode = "NOT_PERMITTED"
)

// ErrorResponse represents a structured error response.
type ErrorResponse struct {
	Error     string    `json:"error"`                // HTTP status text
	Message   string    `json:"message"`              // Human-readable description
	Code      ErrorCode `json:"code"`                 // Machine-readable error code
	RequestID string    `json:"request_id,omitempty"` // Request ID for debugging
}

func writeErrorCode(w http.ResponseWriter, r *http.Request, status int, code ErrorCode, message string) {
	resp := ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    code,
	}
	if reqID := middleware.GetReqID(r.Context()); reqID != "" {
		resp.RequestID = reqID
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
