package iam

import "net/http"

// handleRevoke implements RFC 7009: revoking an unknown or already-consumed
// token is not an error (spec.md §4.1 Revocation endpoint).
func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, s.logger, http.StatusBadRequest, "invalid_request", "failed to parse request body")
		return
	}
	token := r.PostFormValue("token")
	if token == "" {
		writeOAuthError(w, s.logger, http.StatusBadRequest, "invalid_request", "token is required")
		return
	}
	if err := s.store.RevokeRefreshToken(r.Context(), token); err != nil {
		s.logger.Warnf("revoking token: %v", err)
	}
	w.WriteHeader(http.StatusOK)
}
