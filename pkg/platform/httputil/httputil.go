// Package httputil centralizes JSON envelopes so every handler speaks the
// same dialect: errors carry a stable code, internal details never leak.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "civicdesk/pkg/domain-errors"
)

// WriteJSON encodes v with the given status. Encoding failures are ignored;
// by that point headers are already on the wire.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into the JSON error envelope.
// Internal errors omit the description so store details never leak.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := map[string]string{"error": string(code)}
	if code != dErrors.CodeInternal {
		if msg := dErrors.MessageOf(err); msg != "" {
			body["error_description"] = msg
		}
	}
	WriteJSON(w, dErrors.ToHTTPStatus(code), body)
}

// Decode reads a JSON request body into T, translating malformed payloads
// into a bad_request domain error written to w. Returns false when the
// handler should stop.
func Decode[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var req T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed JSON body"))
		return req, false
	}
	return req, true
}
