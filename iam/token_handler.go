package iam

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/yanniks/health-companion-prototype/internal/idgen"
)

// tokenResponse is the RFC 6749 §5.1 access token response body.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, s.logger, http.StatusBadRequest, "invalid_request", "failed to parse request body")
		return
	}
	if r.PostFormValue("client_id") != s.client.ID {
		writeOAuthError(w, s.logger, http.StatusUnauthorized, "invalid_client", "unknown client_id")
		return
	}

	switch r.PostFormValue("grant_type") {
	case "authorization_code":
		s.handleAuthCodeGrant(w, r)
	case "refresh_token":
		s.handleRefreshTokenGrant(w, r)
	default:
		writeOAuthError(w, s.logger, http.StatusBadRequest, "unsupported_grant_type", "grant_type must be authorization_code or refresh_token")
	}
}

func (s *Server) handleAuthCodeGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := r.PostFormValue("code")
	redirectURI := r.PostFormValue("redirect_uri")
	verifier := r.PostFormValue("code_verifier")
	if code == "" {
		writeOAuthError(w, s.logger, http.StatusBadRequest, "invalid_request", "code is required")
		return
	}
	if verifier == "" {
		writeOAuthError(w, s.logger, http.StatusBadRequest, "invalid_request", "code_verifier is required")
		return
	}

	authCode, err := s.store.ConsumeAuthCode(ctx, code)
	if err != nil {
		writeOAuthError(w, s.logger, http.StatusBadRequest, "invalid_grant", "invalid or already-consumed authorization code")
		return
	}
	now := s.now()
	if now.After(authCode.Expiry) {
		writeOAuthError(w, s.logger, http.StatusBadRequest, "invalid_grant", "authorization code expired")
		return
	}
	if authCode.ClientID != r.PostFormValue("client_id") || authCode.RedirectURI != redirectURI {
		writeOAuthError(w, s.logger, http.StatusBadRequest, "invalid_grant", "client_id/redirect_uri mismatch")
		return
	}
	if !verifyCodeChallenge(verifier, authCode.PKCE) {
		writeOAuthError(w, s.logger, http.StatusBadRequest, "invalid_grant", "code_verifier does not match code_challenge")
		return
	}

	// A deleted patient cascades refresh-token revocation but not
	// authorization-code revocation, so an unexpired code can still
	// reference a subject that's gone. spec.md §4.1 Failure semantics:
	// proceed with demographics absent rather than failing the exchange.
	var demographics *Patient
	if patient, err := s.store.GetPatient(ctx, authCode.SubjectID); err == nil {
		demographics = &patient
	}

	s.issueTokenPair(ctx, w, authCode.SubjectID, authCode.Scopes, demographics, now)
}

func (s *Server) handleRefreshTokenGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := r.PostFormValue("refresh_token")
	if token == "" {
		writeOAuthError(w, s.logger, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	rt, err := s.store.ConsumeRefreshToken(ctx, token)
	if err != nil {
		writeOAuthError(w, s.logger, http.StatusBadRequest, "invalid_grant", "invalid, expired, or already-rotated refresh token")
		return
	}
	now := s.now()
	if now.After(rt.Expiry) {
		writeOAuthError(w, s.logger, http.StatusBadRequest, "invalid_grant", "refresh token expired")
		return
	}

	var demographics *Patient
	if patient, err := s.store.GetPatient(ctx, rt.SubjectID); err == nil {
		demographics = &patient
	}

	s.issueTokenPair(ctx, w, rt.SubjectID, rt.Scopes, demographics, now)
}

// issueTokenPair signs a fresh access token and rotates in a fresh refresh
// token, persisting the latter before the response is written so a crash
// between issuance and persistence can never leave a token in the client's
// hands that the store doesn't also know about (spec.md §4.1 Token
// issuance / rotation invariant).
func (s *Server) issueTokenPair(ctx context.Context, w http.ResponseWriter, subjectID string, scopes []string, patient *Patient, now time.Time) {
	var demographics *Demographics
	if patient != nil {
		demographics = &Demographics{GivenName: patient.Given, FamilyName: patient.Family, DOB: patient.DOB}
	}
	accessToken, _, err := s.keys.IssueAccessToken(subjectID, scopes, demographics, now)
	if err != nil {
		s.logger.Errorf("issuing access token: %v", err)
		writeOAuthError(w, s.logger, http.StatusInternalServerError, "server_error", "")
		return
	}

	refresh := RefreshToken{
		Token:     idgen.RefreshToken(),
		SubjectID: subjectID,
		Scopes:    scopes,
		CreatedAt: now,
		Expiry:    now.Add(RefreshTokenTTL),
	}
	if err := s.store.CreateRefreshToken(ctx, refresh); err != nil {
		s.logger.Errorf("persisting rotated refresh token: %v", err)
		writeOAuthError(w, s.logger, http.StatusInternalServerError, "server_error", "")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(AccessTokenTTL.Seconds()),
		RefreshToken: refresh.Token,
		Scope:        strings.Join(scopes, " "),
	})
}

func verifyCodeChallenge(verifier string, pkce PKCE) bool {
	sum := sha256.Sum256([]byte(verifier))
	computed := base64.RawURLEncoding.EncodeToString(sum[:])
	return pkce.CodeChallengeMethod == requiredCodeChallengeMethod && computed == pkce.CodeChallenge
}
