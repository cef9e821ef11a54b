// Package httpx provides JSON response and decoding utilities.
package httpx

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the machine-readable error payload returned by the API.
type ErrorBody struct {
	Error         string   `json:"error"`
	Detail        string   `json:"detail,omitempty"`
	Required      []string `json:"required,omitempty"`
	RequiredLevel string   `json:"requiredLevel,omitempty"`
	Valid         []string `json:"valid,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Error sends a minimal {"error": ...} payload.
func Error(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, ErrorBody{Error: msg})
}

// ErrorDetail sends an {"error": ..., "detail": ...} payload.
func ErrorDetail(w http.ResponseWriter, status int, msg, detail string) {
	JSON(w, status, ErrorBody{Error: msg, Detail: detail})
}

// DecodeJSON decodes the JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}
