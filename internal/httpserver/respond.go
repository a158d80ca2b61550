package httpserver

import (
	"encoding/json"
	"net/http"
)

// Respond writes v as a JSON response with the given status code.
func Respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorEnvelope is the JSON shape returned for every error response:
// {error, status, requestId}. RespondErrorExtra merges further fields into
// the same shape.
type errorEnvelope struct {
	Error     string `json:"error"`
	Status    int    `json:"status"`
	RequestID string `json:"requestId"`
}

// RespondError writes a standard {error, status, requestId} envelope. reason
// should be one of the stable reason codes (e.g. "invalid_payload",
// "case_not_found", "internal_error").
func RespondError(w http.ResponseWriter, r *http.Request, status int, reason string) {
	Respond(w, status, errorEnvelope{
		Error:     reason,
		Status:    status,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

// RespondErrorExtra writes the standard error envelope merged with extra
// fields. The 429 responses of pkg/antifraud's middleware and pkg/invoice's
// handler are written with RespondError and carry neither a type nor a
// retryAfterSeconds field.
func RespondErrorExtra(w http.ResponseWriter, r *http.Request, status int, reason string, extra map[string]any) {
	body := map[string]any{
		"error":     reason,
		"status":    status,
		"requestId": RequestIDFromContext(r.Context()),
	}
	for k, v := range extra {
		body[k] = v
	}
	Respond(w, status, body)
}
