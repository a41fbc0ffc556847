// Package httputil centralizes JSON response and error envelope writing so
// every handler produces the same shapes.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "daofund/pkg/domain-errors"
)

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into the JSON error envelope.
// Unknown errors surface as internal without leaking details.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := map[string]string{"error": string(code)}
	if de, ok := err.(*dErrors.Error); ok {
		body["reason"] = de.Message
	}
	WriteJSON(w, dErrors.ToHTTPStatus(code), body)
}
