// Package response writes the JSON envelopes shared by handlers and middleware.
package response

import (
	"encoding/json"
	"net/http"
	"time"
)

// Envelope wraps every successful response body
type Envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

// ErrorBody is the body of every rejected request
type ErrorBody struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Path      string `json:"path,omitempty"`
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// JSON writes data inside a success envelope
func JSON(w http.ResponseWriter, status int, data any) error {
	return write(w, status, Envelope{Success: true, Data: data, Timestamp: timestamp()})
}

// Error writes an error envelope. path is omitted from the body when empty.
func Error(w http.ResponseWriter, status int, errorType, message, path string) error {
	return write(w, status, ErrorBody{
		Error:     errorType,
		Message:   message,
		Timestamp: timestamp(),
		Path:      path,
	})
}

func write(w http.ResponseWriter, status int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}
