package clinical

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/yanniks/health-companion-prototype/internal/fhir"
	"github.com/yanniks/health-companion-prototype/internal/idgen"
)

// demographics groups optional subject demographics. processRequest does
// not use it: it carries them as flat patientFirstName, patientLastName and
// patientDateOfBirth fields.
type demographics struct {
	GivenName  string `json:"givenName,omitempty"`
	FamilyName string `json:"familyName,omitempty"`
	DOB        string `json:"dateOfBirth,omitempty"`
}

// processRequest is the Clinical Emitter's inbound payload, matching
// forward.Payload field-for-field.
type processRequest struct {
	PatientID          string             `json:"patientId"`
	PatientFirstName   string             `json:"patientFirstName,omitempty"`
	PatientLastName    string             `json:"patientLastName,omitempty"`
	PatientDateOfBirth string             `json:"patientDateOfBirth,omitempty"`
	Observations       []fhir.Observation `json:"observations"`
}

// entryResult mirrors forward.EntryResult for this service's own response.
type entryResult struct {
	GDTFileName string   `json:"gdtFileName,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// processResponse mirrors forward.ProcessResponse.
type processResponse struct {
	Status         string        `json:"status"`
	TotalProcessed int           `json:"totalProcessed"`
	Successful     int           `json:"successful"`
	Failed         int           `json:"failed"`
	Results        []entryResult `json:"results"`
}

// handleProcess implements spec.md §4.3 Process endpoint: re-hydrate each
// observation, synthesize a subject if absent, convert to GDT, write to the
// exchange directory, and record one transfer in the status store.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "malformed process request")
		return
	}

	now := s.now()
	results := make([]entryResult, len(req.Observations))
	successful := 0

	for i, obs := range req.Observations {
		obs = synthesizeSubject(obs, req.PatientID, req.PatientFirstName, req.PatientLastName)
		doc, warnings := toGDT(obs, s.senderID, s.receiverID)

		encoded, err := doc.Encode()
		if err != nil {
			results[i] = entryResult{Error: err.Error()}
			continue
		}

		fileName, err := s.writeExchangeFile(now, encoded)
		if err != nil {
			results[i] = entryResult{Error: err.Error()}
			continue
		}

		results[i] = entryResult{GDTFileName: fileName, Warnings: warnings}
		successful++
	}

	total := len(req.Observations)
	failed := total - successful

	status := "success"
	switch {
	case total == 0:
		status = "success"
	case failed == total:
		status = "error"
	case failed > 0:
		status = "partial"
	}

	if req.PatientID != "" {
		if successful > 0 {
			if err := s.status.Update(req.PatientID, func(item TransferStatus, found bool) (TransferStatus, bool) {
				return recordSuccess(item, found, req.PatientID, now), true
			}); err != nil {
				s.logger.Errorf("recording transfer status for %s: %v", req.PatientID, err)
			}
		} else if failed > 0 {
			if err := s.status.Update(req.PatientID, func(item TransferStatus, found bool) (TransferStatus, bool) {
				return recordFailure(item, found, req.PatientID, "gdt_encode_failed", now), true
			}); err != nil {
				s.logger.Errorf("recording transfer status for %s: %v", req.PatientID, err)
			}
		}
	}

	writeJSONBody(w, http.StatusOK, processResponse{
		Status:         status,
		TotalProcessed: total,
		Successful:     successful,
		Failed:         failed,
		Results:        results,
	})
}

// writeExchangeFile writes an encoded GDT document to the exchange
// directory under a unique name, per spec.md §4.3 step 4: directory
// creation is idempotent and every write uses a fresh filename so
// concurrent calls never collide.
func (s *Server) writeExchangeFile(now time.Time, encoded []byte) (string, error) {
	if err := os.MkdirAll(s.outputPath, 0o755); err != nil {
		return "", err
	}
	fileName := "obs_" + now.UTC().Format("20060102150405") + "_" + idgen.Opaque(6) + ".gdt"
	path := filepath.Join(s.outputPath, fileName)
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return "", err
	}
	return fileName, nil
}
