package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// errorResponse is the canned error shape returned to SDK clients. Error is
// a pointer so a missing detail serializes as JSON null, matching what the
// Sentry SDKs expect from the 500 shape.
type errorResponse struct {
	Success bool    `json:"success"`
	Code    int     `json:"code"`
	Message string  `json:"message"`
	Error   *string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeUnprocessableEntity(w http.ResponseWriter) {
	detail := "Invalid Request"
	writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
		Success: false,
		Code:    http.StatusUnprocessableEntity,
		Message: "Unprocessable Entity",
		Error:   &detail,
	})
}

func writeTooManyRequests(w http.ResponseWriter) {
	detail := "Rate Limit Exceeded"
	writeJSON(w, http.StatusTooManyRequests, errorResponse{
		Success: false,
		Code:    http.StatusTooManyRequests,
		Message: "Too Many Requests",
		Error:   &detail,
	})
}

func writeInternalServerError(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, errorResponse{
		Success: false,
		Code:    http.StatusInternalServerError,
		Message: "Internal Server Error",
		Error:   nil,
	})
}
