package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/yanniks/health-companion-prototype/gateway/audit"
	"github.com/yanniks/health-companion-prototype/gateway/auth"
	"github.com/yanniks/health-companion-prototype/gateway/forward"
	"github.com/yanniks/health-companion-prototype/gateway/normalize"
	"github.com/yanniks/health-companion-prototype/internal/fhir"
)

// submissionResult is the canonical per-submission response of spec.md
// §4.2 Forwarding: status, counts, echoed idempotency key, per-entry
// results, and a processed-at timestamp.
type submissionResult struct {
	Status         string               `json:"status"`
	TotalProcessed int                  `json:"totalProcessed"`
	Successful     int                  `json:"successful"`
	Failed         int                  `json:"failed"`
	IdempotencyKey string               `json:"idempotencyKey"`
	Results        []forward.EntryResult `json:"results"`
	ProcessedAt    time.Time            `json:"processedAt"`
}

func (s *Server) handleSubmitObservations(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey == "" {
		writeError(w, http.StatusBadRequest, auth.CategoryValidation, "Idempotency-Key header is required")
		return
	}

	if cached, found := s.idempotency.Lookup(idempotencyKey, claims.Subject); found {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(cached)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, auth.CategoryValidation, "failed to read request body")
		return
	}

	var bundle fhir.Bundle
	if err := json.Unmarshal(body, &bundle); err != nil {
		writeError(w, http.StatusBadRequest, auth.CategoryValidation, "malformed FHIR Bundle")
		return
	}
	observations, err := bundle.Observations()
	if err != nil {
		writeError(w, http.StatusBadRequest, auth.CategoryValidation, "failed to decode bundle entries")
		return
	}
	if len(observations) == 0 {
		writeError(w, http.StatusBadRequest, auth.CategoryValidation, "bundle contains no observations")
		return
	}

	normalized := make([]fhir.Observation, len(observations))
	for i, obs := range observations {
		normalized[i] = normalize.Observation(obs)
	}

	var demographics struct {
		GivenName  string
		FamilyName string
		DOB        string
	}
	if claims.Demographics != nil {
		demographics.GivenName = claims.Demographics.GivenName
		demographics.FamilyName = claims.Demographics.FamilyName
		demographics.DOB = claims.Demographics.DOB
	}

	// A second request racing the first with the same (Idempotency-Key,
	// subject) pair joins this call instead of forwarding the bundle to
	// the Clinical Emitter a second time (spec.md §5 write-once).
	groupKey := claims.Subject + "\x00" + idempotencyKey
	shared, err := s.submissionGroup.Do(groupKey, func() (interface{}, error) {
		downstream, forwardedBody, forwardErr := s.forwarder.Process(r.Context(), forward.Payload{
			PatientID:          claims.Subject,
			PatientFirstName:   demographics.GivenName,
			PatientLastName:    demographics.FamilyName,
			PatientDateOfBirth: demographics.DOB,
			Observations:       normalized,
		})

		result := mapSubmissionResult(downstream, forwardErr, len(normalized), idempotencyKey, s.now())

		responseJSON, marshalErr := json.Marshal(result)
		if marshalErr != nil {
			return nil, marshalErr
		}

		// Hashed over the exact JSON forwarded to the Clinical Emitter, not
		// the pre-normalization inbound body, per spec.md §4.2 Audit and
		// §8 scenario 6.
		auditEntry := audit.Entry{
			EventKind:        "submission",
			IdempotencyKey:   idempotencyKey,
			SubjectReference: claims.Subject,
			BodySHA256:       audit.HashBody(forwardedBody),
			Outcome:          result.Status,
		}
		if auditErr := s.audit.Append(auditEntry); auditErr != nil {
			s.logger.Warnf("audit append failed: %v", auditErr)
		}

		alreadyPresent := false
		if forwardErr == nil {
			// Idempotency cache is populated only on a completed forwarding
			// attempt, so a timeout leaves the key replayable (spec.md §5).
			if _, present, cacheErr := s.idempotency.StoreIfAbsent(idempotencyKey, claims.Subject, responseJSON); cacheErr != nil {
				s.logger.Errorf("persisting idempotency entry: %v", cacheErr)
			} else {
				alreadyPresent = present
			}
		}

		return submissionOutcome{responseJSON: responseJSON, alreadyPresent: alreadyPresent}, nil
	})
	if err != nil {
		s.logger.Errorf("marshaling submission result: %v", err)
		writeError(w, http.StatusInternalServerError, auth.CategoryInternal, "internal error")
		return
	}

	outcome := shared.(submissionOutcome)
	status := http.StatusCreated
	if outcome.alreadyPresent {
		status = http.StatusOK
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(outcome.responseJSON)
}

// submissionOutcome is the value shared across callers coalesced by
// Server.submissionGroup for a single (idempotency key, subject) pair.
type submissionOutcome struct {
	responseJSON   []byte
	alreadyPresent bool
}

func mapSubmissionResult(downstream forward.ProcessResponse, forwardErr error, total int, idempotencyKey string, now time.Time) submissionResult {
	if forwardErr != nil {
		results := make([]forward.EntryResult, total)
		for i := range results {
			results[i] = forward.EntryResult{Error: "upstream forwarding failed"}
		}
		return submissionResult{
			Status:         "error",
			TotalProcessed: total,
			Successful:     0,
			Failed:         total,
			IdempotencyKey: idempotencyKey,
			Results:        results,
			ProcessedAt:    now,
		}
	}
	return submissionResult{
		Status:         downstream.Status,
		TotalProcessed: downstream.TotalProcessed,
		Successful:     downstream.Successful,
		Failed:         downstream.Failed,
		IdempotencyKey: idempotencyKey,
		Results:        downstream.Results,
		ProcessedAt:    now,
	}
}
