package forward

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yanniks/health-companion-prototype/internal/fhir"
)

func TestProcessForwardsPayloadAndParsesResponse(t *testing.T) {
	var gotPayload Payload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/process" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Fatalf("decoding request body: %v", err)
		}
		json.NewEncoder(w).Encode(ProcessResponse{Status: "success", TotalProcessed: 1, Successful: 1})
	}))
	defer server.Close()

	client := New(server.URL)
	resp, sentBody, err := client.Process(context.Background(), Payload{
		PatientID:    "1",
		Observations: []fhir.Observation{{ResourceType: "Observation"}},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if resp.Status != "success" || resp.Successful != 1 {
		t.Errorf("resp = %+v, want status=success successful=1", resp)
	}
	if gotPayload.PatientID != "1" {
		t.Errorf("forwarded patientId = %q, want 1", gotPayload.PatientID)
	}
	var sentPayload Payload
	if err := json.Unmarshal(sentBody, &sentPayload); err != nil {
		t.Fatalf("decoding the bytes Process reported as sent: %v", err)
	}
	if sentPayload.PatientID != "1" {
		t.Errorf("sentBody patientId = %q, want 1", sentPayload.PatientID)
	}
}

func TestProcessNonSuccessStatusIsReportedAsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(server.URL)
	if _, _, err := client.Process(context.Background(), Payload{PatientID: "1"}); err == nil {
		t.Error("expected an error for a non-2xx response")
	}
}

func TestStatusNotFoundReturnsZeroValueWithoutError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := New(server.URL)
	doc, err := client.Status(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if doc.HasSuccessfulTransfer {
		t.Error("expected a zero-value status document for a 404")
	}
}

func TestStatusDecodesSuccessfulResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/status/1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(StatusDocument{HasSuccessfulTransfer: true})
	}))
	defer server.Close()

	client := New(server.URL)
	doc, err := client.Status(context.Background(), "1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !doc.HasSuccessfulTransfer {
		t.Error("expected HasSuccessfulTransfer = true")
	}
}
