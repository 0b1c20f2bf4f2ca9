package iam

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
)

func TestCreatePatientReturnsAssignedID(t *testing.T) {
	s, _ := newTestServer(t)

	body := `{"givenName":"Max","familyName":"Mustermann","dateOfBirth":"1990-01-15"}`
	req := httptest.NewRequest(http.MethodPost, "/patients", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleCreatePatient(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp patientResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.ID == "" {
		t.Error("expected a non-empty assigned patient id")
	}
}

func TestCreatePatientRejectsMissingFields(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/patients", strings.NewReader(`{"givenName":"Max"}`))
	rec := httptest.NewRecorder()
	s.handleCreatePatient(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestPatientIDsAreNeverReused(t *testing.T) {
	s, now := newTestServer(t)
	a := registerTestPatient(t, s, now)
	b, err := s.store.RegisterPatient(nil, "Erika", "Musterfrau", "1985-05-20", now)
	if err != nil {
		t.Fatalf("RegisterPatient: %v", err)
	}
	if a.ID == b.ID {
		t.Errorf("two patients were assigned the same id %q", a.ID)
	}
}

func TestListPatientsReturnsAllRegistered(t *testing.T) {
	s, now := newTestServer(t)
	registerTestPatient(t, s, now)

	req := httptest.NewRequest(http.MethodGet, "/patients", nil)
	rec := httptest.NewRecorder()
	s.handleListPatients(rec, req)

	var list []patientResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d patients, want 1", len(list))
	}
}

func withRouteVar(r *http.Request, key, value string) *http.Request {
	return mux.SetURLVars(r, map[string]string{key: value})
}

func TestGetPatientUnknownIDReturnsNotFound(t *testing.T) {
	s, _ := newTestServer(t)

	req := withRouteVar(httptest.NewRequest(http.MethodGet, "/patients/999", nil), "id", "999")
	rec := httptest.NewRecorder()
	s.handleGetPatient(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDeletePatientCascadesRefreshTokenRevocation(t *testing.T) {
	s, now := newTestServer(t)
	patient := registerTestPatient(t, s, now)
	code := issueTestAuthCode(t, s, patient.ID)
	tokens := decodeTokenResponse(t, postToken(t, s, map[string][]string{
		"grant_type":    {"authorization_code"},
		"client_id":     {testClientID},
		"code":          {code},
		"redirect_uri":  {testRedirectURI},
		"code_verifier": {testCodeVerifier},
	}).Body.Bytes())
	if tokens.RefreshToken == "" {
		t.Fatal("expected a refresh token before deleting the patient")
	}

	req := withRouteVar(httptest.NewRequest(http.MethodDelete, "/patients/"+patient.ID, nil), "id", patient.ID)
	rec := httptest.NewRecorder()
	s.handleDeletePatient(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}

	rec2 := postToken(t, s, map[string][]string{
		"grant_type":    {"refresh_token"},
		"client_id":     {testClientID},
		"refresh_token": {tokens.RefreshToken},
	})
	if rec2.Code != http.StatusBadRequest {
		t.Errorf("refreshing a token belonging to a deleted patient returned %d, want 400", rec2.Code)
	}
}

func TestDeletePatientUnknownIDReturnsNotFound(t *testing.T) {
	s, _ := newTestServer(t)

	req := withRouteVar(httptest.NewRequest(http.MethodDelete, "/patients/999", nil), "id", "999")
	rec := httptest.NewRecorder()
	s.handleDeletePatient(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
