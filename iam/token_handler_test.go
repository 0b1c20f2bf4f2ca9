package iam

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"
)

func decodeTokenResponse(t *testing.T, body []byte) tokenResponse {
	t.Helper()
	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decoding token response: %v", err)
	}
	return resp
}

func TestTokenAuthCodeGrantIssuesAccessAndRefreshTokens(t *testing.T) {
	s, now := newTestServer(t)
	patient := registerTestPatient(t, s, now)
	code := issueTestAuthCode(t, s, patient.ID)

	rec := postToken(t, s, url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {testClientID},
		"code":          {code},
		"redirect_uri":  {testRedirectURI},
		"code_verifier": {testCodeVerifier},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeTokenResponse(t, rec.Body.Bytes())
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatalf("expected both access_token and refresh_token, got %+v", resp)
	}
	if resp.TokenType != "Bearer" {
		t.Errorf("token_type = %q, want Bearer", resp.TokenType)
	}

	claims, err := s.keys.VerifyAccessToken(resp.AccessToken, now)
	if err != nil {
		t.Fatalf("VerifyAccessToken: %v", err)
	}
	if claims.Subject != patient.ID {
		t.Errorf("sub = %q, want %q", claims.Subject, patient.ID)
	}
}

func TestTokenAuthCodeGrantIsSingleUse(t *testing.T) {
	s, now := newTestServer(t)
	patient := registerTestPatient(t, s, now)
	code := issueTestAuthCode(t, s, patient.ID)

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {testClientID},
		"code":          {code},
		"redirect_uri":  {testRedirectURI},
		"code_verifier": {testCodeVerifier},
	}
	first := postToken(t, s, form)
	if first.Code != http.StatusOK {
		t.Fatalf("first exchange status = %d, body = %s", first.Code, first.Body.String())
	}
	second := postToken(t, s, form)
	if second.Code != http.StatusBadRequest {
		t.Errorf("second exchange of the same code status = %d, want 400", second.Code)
	}
}

func TestTokenAuthCodeGrantRejectsWrongVerifier(t *testing.T) {
	s, now := newTestServer(t)
	patient := registerTestPatient(t, s, now)
	code := issueTestAuthCode(t, s, patient.ID)

	rec := postToken(t, s, url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {testClientID},
		"code":          {code},
		"redirect_uri":  {testRedirectURI},
		"code_verifier": {"a-completely-different-verifier-that-will-not-match"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for a mismatched code_verifier", rec.Code)
	}
}

func TestTokenAuthCodeGrantRejectsMismatchedRedirectURI(t *testing.T) {
	s, now := newTestServer(t)
	patient := registerTestPatient(t, s, now)
	code := issueTestAuthCode(t, s, patient.ID)

	rec := postToken(t, s, url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {testClientID},
		"code":          {code},
		"redirect_uri":  {"com.example.healthcompanion:/different/callback"},
		"code_verifier": {testCodeVerifier},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for a redirect_uri that doesn't match the one used at /authorize", rec.Code)
	}
}

func TestTokenRefreshGrantRotatesToken(t *testing.T) {
	s, now := newTestServer(t)
	patient := registerTestPatient(t, s, now)
	code := issueTestAuthCode(t, s, patient.ID)
	firstTokens := decodeTokenResponse(t, postToken(t, s, url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {testClientID},
		"code":          {code},
		"redirect_uri":  {testRedirectURI},
		"code_verifier": {testCodeVerifier},
	}).Body.Bytes())

	rec := postToken(t, s, url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {testClientID},
		"refresh_token": {firstTokens.RefreshToken},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, body = %s", rec.Code, rec.Body.String())
	}
	rotated := decodeTokenResponse(t, rec.Body.Bytes())
	if rotated.RefreshToken == firstTokens.RefreshToken {
		t.Error("expected rotation to mint a new refresh_token, got the same one back")
	}
	if rotated.AccessToken == firstTokens.AccessToken {
		t.Error("expected rotation to mint a new access_token")
	}
}

// TestTokenRefreshGrantReuseIsRejected exercises spec.md §8 scenario 2:
// replaying an already-rotated refresh token must fail, not silently
// succeed, since ConsumeRefreshToken removes it on its first use.
func TestTokenRefreshGrantReuseIsRejected(t *testing.T) {
	s, now := newTestServer(t)
	patient := registerTestPatient(t, s, now)
	code := issueTestAuthCode(t, s, patient.ID)
	firstTokens := decodeTokenResponse(t, postToken(t, s, url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {testClientID},
		"code":          {code},
		"redirect_uri":  {testRedirectURI},
		"code_verifier": {testCodeVerifier},
	}).Body.Bytes())

	refreshForm := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {testClientID},
		"refresh_token": {firstTokens.RefreshToken},
	}
	first := postToken(t, s, refreshForm)
	if first.Code != http.StatusOK {
		t.Fatalf("first refresh status = %d, body = %s", first.Code, first.Body.String())
	}

	replay := postToken(t, s, refreshForm)
	if replay.Code != http.StatusBadRequest {
		t.Errorf("replaying a rotated refresh token returned %d, want 400", replay.Code)
	}
}

// TestTokenAuthCodeGrantSucceedsWhenPatientDeletedAfterCodeIssued exercises
// spec.md §4.1 Failure semantics: DeletePatient cascades refresh-token
// revocation but not authorization-code revocation, so an unexpired code
// can still reference a subject that's gone by the time it's exchanged.
// The exchange must still succeed, only without demographics.
func TestTokenAuthCodeGrantSucceedsWhenPatientDeletedAfterCodeIssued(t *testing.T) {
	s, now := newTestServer(t)
	patient := registerTestPatient(t, s, now)
	code := issueTestAuthCode(t, s, patient.ID)

	if err := s.store.DeletePatient(context.Background(), patient.ID); err != nil {
		t.Fatalf("DeletePatient: %v", err)
	}

	rec := postToken(t, s, url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {testClientID},
		"code":          {code},
		"redirect_uri":  {testRedirectURI},
		"code_verifier": {testCodeVerifier},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 even though the subject no longer exists, body = %s", rec.Code, rec.Body.String())
	}
	resp := decodeTokenResponse(t, rec.Body.Bytes())
	claims, err := s.keys.VerifyAccessToken(resp.AccessToken, now)
	if err != nil {
		t.Fatalf("VerifyAccessToken: %v", err)
	}
	if claims.Demographics != nil {
		t.Errorf("expected absent demographics for a deleted patient, got %+v", claims.Demographics)
	}
}

func TestTokenRejectsUnsupportedGrantType(t *testing.T) {
	s, _ := newTestServer(t)
	rec := postToken(t, s, url.Values{
		"grant_type": {"client_credentials"},
		"client_id":  {testClientID},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for an unsupported grant_type", rec.Code)
	}
}

func TestTokenRejectsUnknownClientID(t *testing.T) {
	s, _ := newTestServer(t)
	rec := postToken(t, s, url.Values{
		"grant_type": {"authorization_code"},
		"client_id":  {"not-the-registered-client"},
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for an unknown client_id", rec.Code)
	}
}
