package iam

import (
	"encoding/json"
	"net/http"

	"github.com/yanniks/health-companion-prototype/internal/logging"
)

// apiError is the JSON envelope of the IA's JSON error responses (token,
// revocation, patient management; /authorize errors are plain-text 400s
// or redirects instead), grounded
// on dex's server.*apiError / server.tokenErr pattern (server/handlers.go).
type apiError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeOAuthError renders an RFC 6749 §5.2 error response body.
func writeOAuthError(w http.ResponseWriter, logger logging.Logger, status int, code, description string) {
	logger.Warnf("oauth error response: %s: %s", code, description)
	writeJSON(w, status, apiError{Error: code, ErrorDescription: description})
}
