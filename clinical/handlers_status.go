package clinical

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/yanniks/health-companion-prototype/internal/filestore"
)

// statusResponse mirrors forward.StatusDocument for this service's own
// JSON contract (spec.md §4.3 Status endpoint).
type statusResponse struct {
	HasSuccessfulTransfer bool   `json:"hasSuccessfulTransfer"`
	LastSuccessfulAt      string `json:"lastSuccessfulAt,omitempty"`
	LastAttemptAt         string `json:"lastAttemptAt,omitempty"`
	LastErrorKind         string `json:"lastErrorKind,omitempty"`
	PendingCount          int    `json:"pendingCount"`
}

// handleStatus returns the subject's running status, or not_found if the
// subject has no recorded transfers (spec.md §4.3 Status endpoint).
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	patientID := mux.Vars(r)["patientId"]

	record, err := s.status.Get(patientID)
	if err == filestore.ErrNotFound {
		writeError(w, http.StatusNotFound, "not_found", "no recorded transfers for this subject")
		return
	}
	if err != nil {
		s.logger.Errorf("looking up transfer status for %s: %v", patientID, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	resp := statusResponse{
		HasSuccessfulTransfer: record.HasSuccessfulTransfer,
		LastErrorKind:         record.LastErrorKind,
		PendingCount:          record.PendingCount,
	}
	if !record.LastSuccessfulAt.IsZero() {
		resp.LastSuccessfulAt = record.LastSuccessfulAt.Format(timeLayout)
	}
	if !record.LastAttemptAt.IsZero() {
		resp.LastAttemptAt = record.LastAttemptAt.Format(timeLayout)
	}
	writeJSONBody(w, http.StatusOK, resp)
}

const timeLayout = "2006-01-02T15:04:05Z07:00"
