package iam

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yanniks/health-companion-prototype/internal/logging"
)

const (
	testClientID      = "mobile-client"
	testRedirectURI   = "com.example.healthcompanion:/oauth/callback"
	testIssuerURL     = "https://iam.example.com"
	testCodeVerifier  = "a-sufficiently-long-and-unguessable-pkce-verifier-string-0123456789"
)

func testCodeChallenge() string {
	sum := sha256.Sum256([]byte(testCodeVerifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func newTestServer(t *testing.T) (*Server, time.Time) {
	t.Helper()
	now := time.Date(2023, 1, 14, 22, 51, 12, 0, time.UTC)

	store, err := OpenStore(t.TempDir(), logging.New(logrus.ErrorLevel))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	keys, err := LoadOrGenerateKeyPair(filepath.Join(t.TempDir(), "key.pem"))
	if err != nil {
		t.Fatalf("LoadOrGenerateKeyPair: %v", err)
	}

	srv, err := NewServer(Config{
		IssuerURL: testIssuerURL,
		Client:    Client{ID: testClientID, RedirectURIs: []string{testRedirectURI}},
		Store:     store,
		Keys:      keys,
		Logger:    logging.New(logrus.ErrorLevel),
		Now:       func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv, now
}

// registerTestPatient registers a patient through the store directly,
// mirroring what an operator would do via POST /patients before a client
// ever starts an authorization flow.
func registerTestPatient(t *testing.T, s *Server, now time.Time) Patient {
	t.Helper()
	p, err := s.store.RegisterPatient(context.Background(), "Max", "Mustermann", "1990-01-15", now)
	if err != nil {
		t.Fatalf("RegisterPatient: %v", err)
	}
	return p
}

// issueTestAuthCode drives the POST /authorize leg and extracts the
// authorization code from the resulting redirect, exactly as a client
// would after the patient consents.
func issueTestAuthCode(t *testing.T, s *Server, patientID string) string {
	t.Helper()
	patient, err := s.store.GetPatient(context.Background(), patientID)
	if err != nil {
		t.Fatalf("looking up patient %s to drive the consent form: %v", patientID, err)
	}
	rec := postAuthorize(t, s, url.Values{
		"client_id":             {testClientID},
		"redirect_uri":          {testRedirectURI},
		"state":                 {"xyz"},
		"scope":                 {"openid observation.write"},
		"code_challenge":        {testCodeChallenge()},
		"code_challenge_method": {"S256"},
		"patient_id":            {patientID},
		"date_of_birth":         {patient.DOB},
	})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("authorize POST status = %d, want 303, body = %s", rec.Code, rec.Body.String())
	}
	loc, err := rec.Result().Location()
	if err != nil {
		t.Fatalf("parsing redirect Location: %v", err)
	}
	code := loc.Query().Get("code")
	if code == "" {
		t.Fatalf("redirect %q carried no code", loc)
	}
	return code
}

// postAuthorize issues a POST /authorize request with an
// application/x-www-form-urlencoded body and returns the recorded response.
func postAuthorize(t *testing.T, s *Server, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/authorize", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.handleAuthorizePost(rec, req)
	return rec
}

// postToken issues a POST /token request with an
// application/x-www-form-urlencoded body and returns the recorded response.
func postToken(t *testing.T, s *Server, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.handleToken(rec, req)
	return rec
}

// newFormRequest builds an application/x-www-form-urlencoded POST request.
func newFormRequest(t *testing.T, method, path string, form url.Values) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func newRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}
