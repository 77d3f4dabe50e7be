package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/benvon/wellness-sessions/internal/response"
)

const maxErrorMessageLength = 200

// respondJSON sends a success envelope
func respondJSON(w http.ResponseWriter, status int, data any) {
	if err := response.JSON(w, status, data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// sanitizeErrorMessage bounds error messages sent to clients
func sanitizeErrorMessage(message string) string {
	if len(message) > maxErrorMessageLength {
		return message[:maxErrorMessageLength] + "..."
	}
	return message
}

// respondJSONError sends an error envelope with a sanitized message
func respondJSONError(w http.ResponseWriter, status int, errorType, message string) {
	if err := response.Error(w, status, errorType, sanitizeErrorMessage(message), ""); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// decodeJSON decodes a single JSON object from the request body into dst and
// writes the error response itself when that fails.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	err := decoder.Decode(dst)
	if err == nil {
		if decoder.More() {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "Request body must contain a single JSON object")
			return false
		}
		return true
	}

	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		respondJSONError(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large",
			fmt.Sprintf("Request body exceeds maximum size of %d bytes", maxBytesErr.Limit))
	case errors.Is(err, io.EOF):
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Request body is required")
	default:
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
	}
	return false
}
