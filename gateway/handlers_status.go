package gateway

import (
	"net/http"

	"github.com/yanniks/health-companion-prototype/gateway/audit"
	"github.com/yanniks/health-companion-prototype/gateway/auth"
)

// statusResponse mirrors forward.StatusDocument for the gateway's own JSON
// contract (spec.md §4.2 Status query).
type statusResponse struct {
	HasSuccessfulTransfer bool   `json:"hasSuccessfulTransfer"`
	LastSuccessfulAt      string `json:"lastSuccessfulAt,omitempty"`
	LastAttemptAt         string `json:"lastAttemptAt,omitempty"`
	LastErrorKind         string `json:"lastErrorKind,omitempty"`
	PendingCount          int    `json:"pendingCount"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())

	doc, err := s.forwarder.Status(r.Context(), claims.Subject)
	outcome := "success"
	if err != nil {
		s.logger.Warnf("status lookup failed for subject %s: %v", claims.Subject, err)
		outcome = "upstream_error"
	}

	if auditErr := s.audit.Append(audit.Entry{EventKind: "status_query", SubjectReference: claims.Subject, Outcome: outcome}); auditErr != nil {
		s.logger.Warnf("audit append failed: %v", auditErr)
	}

	resp := statusResponse{
		HasSuccessfulTransfer: doc.HasSuccessfulTransfer,
		LastErrorKind:         doc.LastErrorKind,
		PendingCount:          doc.PendingCount,
	}
	if !doc.LastSuccessfulAt.IsZero() {
		resp.LastSuccessfulAt = doc.LastSuccessfulAt.Format(timeLayout)
	}
	if !doc.LastAttemptAt.IsZero() {
		resp.LastAttemptAt = doc.LastAttemptAt.Format(timeLayout)
	}
	writeJSONBody(w, http.StatusOK, resp)
}

const timeLayout = "2006-01-02T15:04:05Z07:00"
