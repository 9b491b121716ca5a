package response

import (
	"encoding/json"
	"net/http"
)

// Envelope wraps every non-streaming API response. Exactly one of Data or
// Error is set.
type Envelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// APIError pairs a user-facing message with the low-level error text kept
// for diagnostics.
type APIError struct {
	Message       string `json:"message"`
	Details       string `json:"details,omitempty"`
	OriginalError string `json:"originalError,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func WriteData(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, Envelope{Success: true, Data: data})
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, Envelope{Success: false, Error: &APIError{Message: message}})
}

// WriteFailure reports a pipeline failure, carrying the original low-level
// error text alongside the user-facing message.
func WriteFailure(w http.ResponseWriter, status int, message, original string) {
	WriteJSON(w, status, Envelope{Success: false, Error: &APIError{
		Message:       message,
		Details:       original,
		OriginalError: original,
	}})
}
