package web

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"boutique-credit/internal/core"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// dataResponse is the success envelope.
type dataResponse struct {
	Status  int    `json:"status"`
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// errorStatus maps a service error kind to its HTTP status and wire code.
func errorStatus(kind core.ErrorKind) (int, string) {
	switch kind {
	case core.KindInvalidInput:
		return http.StatusBadRequest, "BAD_REQUEST"
	case core.KindNotFound:
		return http.StatusNotFound, "NOT_FOUND"
	case core.KindPolicyViolation:
		return http.StatusForbidden, "POLICY_VIOLATION"
	case core.KindInsufficientStock:
		return http.StatusConflict, "INSUFFICIENT_STOCK"
	case core.KindConflict:
		return http.StatusConflict, "CONFLICT"
	case core.KindExpiredWindow:
		return http.StatusConflict, "EXPIRED_WINDOW"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// writeServiceError translates an error returned by the application layer.
// Internal errors are logged and never echoed to the caller.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ce *core.Error
	if !errors.As(err, &ce) {
		log.Printf("request %s: %v", requestIDFromContext(r.Context()), err)
		writeError(w, r, "internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
		return
	}
	status, code := errorStatus(ce.Kind)
	if status == http.StatusInternalServerError {
		log.Printf("request %s: %v", requestIDFromContext(r.Context()), err)
	}
	writeError(w, r, core.MessageOf(err), code, status)
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeData wraps v in the success envelope.
func writeData(w http.ResponseWriter, status int, v any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(dataResponse{Status: status, Data: v, Message: message})
}
