package iam

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/yanniks/health-companion-prototype/internal/idgen"
)

const requiredCodeChallengeMethod = "S256"

// redirectedAuthErr carries an OAuth2 error that must be delivered as a
// redirect to the client's redirect_uri, not rendered inline, grounded on
// dex's server.redirectedAuthErr (server/oauth2.go).
type redirectedAuthErr struct {
	state       string
	redirectURI string
	typ         string
	description string
}

func (e *redirectedAuthErr) handle(w http.ResponseWriter, r *http.Request) {
	v := url.Values{}
	v.Set("error", e.typ)
	if e.description != "" {
		v.Set("error_description", e.description)
	}
	if e.state != "" {
		v.Set("state", e.state)
	}
	http.Redirect(w, r, e.redirectURI+"?"+v.Encode(), http.StatusSeeOther)
}

type authRequest struct {
	clientID            string
	redirectURI         string
	state               string
	scopes              []string
	codeChallenge       string
	codeChallengeMethod string
}

// parseAuthRequest validates client_id/redirect_uri/scope/PKCE parameters
// common to both the GET (render form) and POST (issue code) legs of
// /authorize, mirroring dex's parseAuthorizationRequest (server/oauth2.go).
func (s *Server) parseAuthRequest(r *http.Request) (authRequest, *redirectedAuthErr) {
	if err := r.ParseForm(); err != nil {
		return authRequest{}, &redirectedAuthErr{typ: "invalid_request", description: "failed to parse request"}
	}
	q := r.Form

	clientID := q.Get("client_id")
	redirectURI := q.Get("redirect_uri")
	state := q.Get("state")
	scopes := strings.Fields(q.Get("scope"))
	codeChallenge := q.Get("code_challenge")
	codeChallengeMethod := q.Get("code_challenge_method")

	if clientID != s.client.ID {
		return authRequest{}, &redirectedAuthErr{typ: "invalid_request", description: "unknown client_id"}
	}
	if !s.client.AllowsRedirect(redirectURI) {
		return authRequest{}, &redirectedAuthErr{typ: "invalid_request", description: "unregistered redirect_uri"}
	}

	newErr := func(typ, format string, a ...interface{}) *redirectedAuthErr {
		return &redirectedAuthErr{state: state, redirectURI: redirectURI, typ: typ, description: fmt.Sprintf(format, a...)}
	}

	if codeChallenge == "" {
		return authRequest{}, newErr("invalid_request", "PKCE is mandatory: code_challenge is required.")
	}
	if codeChallengeMethod != requiredCodeChallengeMethod {
		return authRequest{}, newErr("invalid_request", "unsupported code_challenge_method %q, only S256 is accepted", codeChallengeMethod)
	}
	if len(scopes) == 0 {
		scopes = []string{"openid", "observation.write"}
	}

	return authRequest{
		clientID:            clientID,
		redirectURI:         redirectURI,
		state:               state,
		scopes:              scopes,
		codeChallenge:       codeChallenge,
		codeChallengeMethod: codeChallengeMethod,
	}, nil
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleAuthorizeGet(w, r)
	case http.MethodPost:
		s.handleAuthorizePost(w, r)
	}
}

func (s *Server) handleAuthorizeGet(w http.ResponseWriter, r *http.Request) {
	req, rerr := s.parseAuthRequest(r)
	if rerr != nil {
		if rerr.redirectURI == "" {
			http.Error(w, rerr.description, http.StatusBadRequest)
			return
		}
		rerr.handle(w, r)
		return
	}

	if err := s.renderConsentForm(w, req, "", "", ""); err != nil {
		s.logger.Errorf("rendering consent form: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
}

// renderConsentForm writes the credentials form (spec.md §4.1/§6: "requesting
// subject + DOB"), re-populating whatever the caller already submitted and,
// on a credential mismatch, an error message — carried as a 200, never a
// redirect, since the caller hasn't proven who they are yet.
func (s *Server) renderConsentForm(w http.ResponseWriter, req authRequest, patientID, dob, errMsg string) error {
	var buf bytes.Buffer
	if err := renderConsent(&buf, consentPage{
		FormAction:          "/authorize",
		ClientID:            req.clientID,
		RedirectURI:         req.redirectURI,
		State:               req.state,
		Scope:               strings.Join(req.scopes, " "),
		CodeChallenge:       req.codeChallenge,
		CodeChallengeMethod: req.codeChallengeMethod,
		PatientID:           patientID,
		DateOfBirth:         dob,
		Error:               errMsg,
	}); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
	return nil
}

func (s *Server) handleAuthorizePost(w http.ResponseWriter, r *http.Request) {
	req, rerr := s.parseAuthRequest(r)
	if rerr != nil {
		if rerr.redirectURI == "" {
			http.Error(w, rerr.description, http.StatusBadRequest)
			return
		}
		rerr.handle(w, r)
		return
	}

	patientID := r.PostFormValue("patient_id")
	dob := r.PostFormValue("date_of_birth")
	if patientID == "" || dob == "" {
		if err := s.renderConsentForm(w, req, patientID, dob, "Patient ID and date of birth are required."); err != nil {
			s.logger.Errorf("rendering consent form: %v", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
		return
	}
	patient, err := s.store.GetPatient(r.Context(), patientID)
	if err != nil || patient.DOB != dob {
		if err := s.renderConsentForm(w, req, patientID, dob, "Patient ID and date of birth do not match our records."); err != nil {
			s.logger.Errorf("rendering consent form: %v", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
		return
	}

	now := s.now()
	code := AuthCode{
		Code:        idgen.AuthCode(),
		ClientID:    req.clientID,
		SubjectID:   patientID,
		RedirectURI: req.redirectURI,
		PKCE:        PKCE{CodeChallenge: req.codeChallenge, CodeChallengeMethod: req.codeChallengeMethod},
		Scopes:      req.scopes,
		State:       req.state,
		CreatedAt:   now,
		Expiry:      now.Add(AuthCodeTTL),
	}
	if err := s.store.CreateAuthCode(r.Context(), code); err != nil {
		s.logger.Errorf("persisting authorization code: %v", err)
		(&redirectedAuthErr{state: req.state, redirectURI: req.redirectURI, typ: "server_error"}).handle(w, r)
		return
	}

	v := url.Values{}
	v.Set("code", code.Code)
	if req.state != "" {
		v.Set("state", req.state)
	}
	http.Redirect(w, r, req.redirectURI+"?"+v.Encode(), http.StatusSeeOther)
}
