package iam

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// patientRegistrationRequest is the body of POST /patients, the management
// call that creates a subject a client can later authorize against
// (spec.md §3 Patient record, §4.1 Patient management).
type patientRegistrationRequest struct {
	GivenName  string `json:"givenName"`
	FamilyName string `json:"familyName"`
	DateOfBirth string `json:"dateOfBirth"`
}

type patientResponse struct {
	ID          string `json:"id"`
	GivenName   string `json:"givenName"`
	FamilyName  string `json:"familyName"`
	DateOfBirth string `json:"dateOfBirth"`
}

func toPatientResponse(p Patient) patientResponse {
	return patientResponse{ID: p.ID, GivenName: p.Given, FamilyName: p.Family, DateOfBirth: p.DOB}
}

func (s *Server) handleCreatePatient(w http.ResponseWriter, r *http.Request) {
	var req patientRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid_request", ErrorDescription: "malformed JSON body"})
		return
	}
	if req.GivenName == "" || req.FamilyName == "" || req.DateOfBirth == "" {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid_request", ErrorDescription: "givenName, familyName, and dateOfBirth are required"})
		return
	}

	p, err := s.store.RegisterPatient(r.Context(), req.GivenName, req.FamilyName, req.DateOfBirth, s.now())
	if err != nil {
		s.logger.Errorf("registering patient: %v", err)
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "server_error"})
		return
	}
	writeJSON(w, http.StatusCreated, toPatientResponse(p))
}

func (s *Server) handleListPatients(w http.ResponseWriter, r *http.Request) {
	patients := s.store.ListPatients(r.Context())
	out := make([]patientResponse, 0, len(patients))
	for _, p := range patients {
		out = append(out, toPatientResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetPatient(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p, err := s.store.GetPatient(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, apiError{Error: "not_found"})
		return
	}
	writeJSON(w, http.StatusOK, toPatientResponse(p))
}

func (s *Server) handleDeletePatient(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.store.DeletePatient(r.Context(), id); err != nil {
		writeJSON(w, http.StatusNotFound, apiError{Error: "not_found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
