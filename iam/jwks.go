package iam

import (
	"encoding/json"
	"net/http"
)

// handleJWKS publishes the current signing key's public half, per spec.md
// §4.1 JWKS endpoint. There is exactly one active key and it is never
// rotated, so no Cache-Control max-age
// bookkeeping against a rotation schedule is needed, unlike dex's
// handlePublicKeys (server/handlers.go).
func (s *Server) handleJWKS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "max-age=3600, must-revalidate")
	_ = json.NewEncoder(w).Encode(s.keys.JWKSDocument())
}
