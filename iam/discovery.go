package iam

import (
	"encoding/json"
	"net/http"

	josev4 "github.com/go-jose/go-jose/v4"
)

// discoveryDocument is the OIDC Discovery document of spec.md §4.1, grounded
// on dex's server.discovery struct (server/handlers.go) but trimmed to the
// fields this single-tenant, PKCE-only authority actually serves.
type discoveryDocument struct {
	Issuer                 string   `json:"issuer"`
	AuthorizationEndpoint  string   `json:"authorization_endpoint"`
	TokenEndpoint          string   `json:"token_endpoint"`
	RevocationEndpoint     string   `json:"revocation_endpoint"`
	JWKSURI                string   `json:"jwks_uri"`
	ResponseTypesSupported []string `json:"response_types_supported"`
	GrantTypesSupported    []string `json:"grant_types_supported"`
	SubjectTypesSupported  []string `json:"subject_types_supported"`
	IDTokenSigningAlgs     []string `json:"id_token_signing_alg_values_supported"`
	CodeChallengeMethods   []string `json:"code_challenge_methods_supported"`
	ScopesSupported        []string `json:"scopes_supported"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	doc := discoveryDocument{
		Issuer:                 s.issuerURL,
		AuthorizationEndpoint:  s.absURL("/authorize"),
		TokenEndpoint:          s.absURL("/token"),
		RevocationEndpoint:     s.absURL("/revoke"),
		JWKSURI:                s.absURL("/jwks"),
		ResponseTypesSupported: []string{"code"},
		GrantTypesSupported:    []string{"authorization_code", "refresh_token"},
		SubjectTypesSupported:  []string{"public"},
		IDTokenSigningAlgs:     []string{string(josev4.ES256)},
		CodeChallengeMethods:   []string{"S256"},
		ScopesSupported:        []string{"openid", "observation.write", "status.read"},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(doc)
}
