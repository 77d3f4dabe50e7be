package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type 'application/json', got '%s'", ct)
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return body
}

func TestRespondJSON(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	respondJSON(w, http.StatusCreated, map[string]string{"message": "hello"})

	if w.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d", w.Code)
	}
	body := decodeEnvelope(t, w)
	if success, ok := body["success"].(bool); !ok || !success {
		t.Error("Expected success to be true")
	}
	data, ok := body["data"].(map[string]any)
	if !ok || data["message"] != "hello" {
		t.Errorf("unexpected data %v", body["data"])
	}
	ts, _ := body["timestamp"].(string)
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		t.Errorf("Timestamp '%s' is not valid RFC3339: %v", ts, err)
	}
}

func TestRespondJSONError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		message     string
		wantMessage string
	}{
		{name: "short message", message: "Invalid input", wantMessage: "Invalid input"},
		{name: "long message truncated", message: strings.Repeat("x", 300), wantMessage: strings.Repeat("x", maxErrorMessageLength) + "..."},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			respondJSONError(w, http.StatusBadRequest, "Bad Request", tt.message)

			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", w.Code)
			}
			body := decodeEnvelope(t, w)
			if success, ok := body["success"].(bool); !ok || success {
				t.Error("Expected success to be false")
			}
			if body["error"] != "Bad Request" {
				t.Errorf("Expected error 'Bad Request', got '%v'", body["error"])
			}
			if body["message"] != tt.wantMessage {
				t.Errorf("message = %v", body["message"])
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	type payload struct {
		Title string `json:"title"`
	}

	tests := []struct {
		name       string
		body       string
		limit      int64
		wantOK     bool
		wantStatus int
	}{
		{name: "valid", body: `{"title":"a"}`, wantOK: true},
		{name: "empty body", body: ``, wantStatus: http.StatusBadRequest},
		{name: "malformed", body: `{"title":`, wantStatus: http.StatusBadRequest},
		{name: "unknown field", body: `{"title":"a","color":"red"}`, wantStatus: http.StatusBadRequest},
		{name: "trailing object", body: `{"title":"a"}{"title":"b"}`, wantStatus: http.StatusBadRequest},
		{name: "too large", body: `{"title":"` + strings.Repeat("a", 64) + `"}`, limit: 16, wantStatus: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			r := httptest.NewRequest("POST", "/", strings.NewReader(tt.body))
			if tt.limit > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, tt.limit)
			}

			var dst payload
			ok := decodeJSON(w, r, &dst)
			if ok != tt.wantOK {
				t.Fatalf("decodeJSON() = %v, want %v", ok, tt.wantOK)
			}
			if !ok && w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

// newTestRequest builds a JSON request with body marshalled from v
func newTestRequest(t *testing.T, method, path string, v any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if v != nil {
		if err := json.NewEncoder(&buf).Encode(v); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	return r
}
