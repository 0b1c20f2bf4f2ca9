// Package forward assembles the normalized submission payload and POSTs it
// to the Clinical Emitter's process endpoint, per spec.md §4.2 Forwarding.
package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/yanniks/health-companion-prototype/internal/fhir"
)

// Payload is the plain JSON body forwarded to the Clinical Emitter.
type Payload struct {
	PatientID           string               `json:"patientId"`
	PatientFirstName    string               `json:"patientFirstName,omitempty"`
	PatientLastName     string               `json:"patientLastName,omitempty"`
	PatientDateOfBirth  string               `json:"patientDateOfBirth,omitempty"`
	Observations        []fhir.Observation   `json:"observations"`
}

// EntryResult is one observation's outcome, shared shape between the
// gateway's submission result and the emitter's process response.
type EntryResult struct {
	GDTFileName string `json:"gdtFileName,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ProcessResponse is the Clinical Emitter's /api/v1/process response body.
type ProcessResponse struct {
	Status        string        `json:"status"`
	TotalProcessed int          `json:"totalProcessed"`
	Successful    int           `json:"successful"`
	Failed        int           `json:"failed"`
	Results       []EntryResult `json:"results"`
}

// Client forwards submissions to the Clinical Emitter.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New constructs a forwarding Client with the spec.md §5-recommended 10s
// per-request timeout as default; callers can override via WithTimeout.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// WithTimeout overrides the per-request timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.httpClient = &http.Client{Timeout: d}
	return c
}

// Process POSTs payload to the Clinical Emitter and parses its response.
// Per spec.md §4.2 Forwarding: a non-2xx or unparseable body is reported
// as a plain error, not mapped into a ProcessResponse (the caller maps
// that into an all-failed submission result). It also returns the exact
// JSON bytes sent, so callers can audit-hash what was actually forwarded
// rather than the pre-normalization inbound body (spec.md §4.2 Audit,
// §8 scenario 6).
func (c *Client) Process(ctx context.Context, payload Payload) (ProcessResponse, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return ProcessResponse{}, nil, errors.Wrap(err, "marshaling forward payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/process", bytes.NewReader(body))
	if err != nil {
		return ProcessResponse{}, body, errors.Wrap(err, "constructing forward request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ProcessResponse{}, body, errors.Wrap(err, "forwarding to clinical emitter")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ProcessResponse{}, body, errors.Errorf("clinical emitter returned status %d", resp.StatusCode)
	}

	var out ProcessResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ProcessResponse{}, body, errors.Wrap(err, "decoding clinical emitter response")
	}
	return out, body, nil
}

// StatusDocument mirrors the Clinical Emitter's per-subject status shape
// (spec.md §4.2 Status query, §4.3 Status endpoint).
type StatusDocument struct {
	HasSuccessfulTransfer bool      `json:"hasSuccessfulTransfer"`
	LastSuccessfulAt      time.Time `json:"lastSuccessfulAt,omitempty"`
	LastAttemptAt         time.Time `json:"lastAttemptAt,omitempty"`
	LastErrorKind         string    `json:"lastErrorKind,omitempty"`
	PendingCount          int       `json:"pendingCount"`
}

// Status fetches the subject's transfer status from the Clinical Emitter.
// Per spec.md §4.2 Status query, a downstream failure is reported as an
// error so the caller can substitute a zero-value document rather than a
// synthetic error.
func (c *Client) Status(ctx context.Context, patientID string) (StatusDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/status/"+patientID, nil)
	if err != nil {
		return StatusDocument{}, errors.Wrap(err, "constructing status request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return StatusDocument{}, errors.Wrap(err, "requesting status from clinical emitter")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return StatusDocument{}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return StatusDocument{}, errors.Errorf("clinical emitter returned status %d", resp.StatusCode)
	}
	var out StatusDocument
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return StatusDocument{}, errors.Wrap(err, "decoding status response")
	}
	return out, nil
}
