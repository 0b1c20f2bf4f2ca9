package iam

import (
	"encoding/json"
	"time"

	josev4 "github.com/go-jose/go-jose/v4"
	"github.com/pkg/errors"
)

// GatewayAudience is the fixed audience literal claimed by access tokens,
// per spec.md §3. The mobile client's well-known IA issuer literal is
// IssuerURL, supplied by Config.
const GatewayAudience = "client-facing-server"

// IssuerName is the fixed issuer literal, matching the end-to-end
// scenario in spec.md §8 (iss == "iam-server").
const IssuerName = "iam-server"

// Demographics are the optional subject demographics an access token may
// carry so the Clinical Emitter can synthesize a FHIR subject reference
// without an extra patient lookup (spec.md §4.1 Token issuance, §9 design
// note on breaking the demographics/token-issuance cycle).
type Demographics struct {
	GivenName  string `json:"givenName,omitempty"`
	FamilyName string `json:"familyName,omitempty"`
	DOB        string `json:"dateOfBirth,omitempty"`
}

// AccessTokenClaims is the stateless claims envelope of spec.md §3.
type AccessTokenClaims struct {
	Issuer       string        `json:"iss"`
	Subject      string        `json:"sub"`
	Audience     string        `json:"aud"`
	IssuedAt     int64         `json:"iat"`
	Expiry       int64         `json:"exp"`
	Scope        string        `json:"scope"`
	Demographics *Demographics `json:"demographics,omitempty"`
}

// IssueAccessToken composes header+payload, canonical-JSON-encodes and
// base64url-encodes both without padding, and signs the ASCII
// concatenation with ES256, per spec.md §4.1 Token issuance.
func (k *KeyPair) IssueAccessToken(subjectID string, scopes []string, demographics *Demographics, now time.Time) (token string, claims AccessTokenClaims, err error) {
	claims = AccessTokenClaims{
		Issuer:       IssuerName,
		Subject:      subjectID,
		Audience:     GatewayAudience,
		IssuedAt:     now.Unix(),
		Expiry:       now.Add(AccessTokenTTL).Unix(),
		Scope:        joinScopes(scopes),
		Demographics: demographics,
	}

	signer, err := josev4.NewSigner(josev4.SigningKey{
		Algorithm: josev4.ES256,
		Key:       k.Private,
	}, (&josev4.SignerOptions{}).WithHeader("kid", k.KeyID).WithType("JWT"))
	if err != nil {
		return "", AccessTokenClaims{}, errors.Wrap(err, "constructing ES256 signer")
	}

	signed, err := signer.Sign(mustMarshal(claims))
	if err != nil {
		return "", AccessTokenClaims{}, errors.Wrap(err, "signing access token")
	}

	compact, err := signed.CompactSerialize()
	if err != nil {
		return "", AccessTokenClaims{}, errors.Wrap(err, "compact-serializing access token")
	}
	return compact, claims, nil
}

func joinScopes(scopes []string) string {
	out := ""
	for i, s := range scopes {
		if i > 0 {
			out += " "
		}
		out += s
	}
	return out
}

func mustMarshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic("iam: claims must always be marshalable: " + err.Error())
	}
	return data
}

// VerifyAccessToken parses a compact ES256 JWS produced by IssueAccessToken
// and returns its claims, checking the signature against the key's own
// public half and the expiry against now. Only tests call it; the
// Ingestion Gateway verifies
// independently against the published JWKS (gateway/auth).
func (k *KeyPair) VerifyAccessToken(compact string, now time.Time) (AccessTokenClaims, error) {
	sig, err := josev4.ParseSigned(compact, []josev4.SignatureAlgorithm{josev4.ES256})
	if err != nil {
		return AccessTokenClaims{}, errors.Wrap(err, "parsing compact JWS")
	}
	payload, err := sig.Verify(k.Private.Public())
	if err != nil {
		return AccessTokenClaims{}, errors.Wrap(err, "verifying access token signature")
	}
	var claims AccessTokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return AccessTokenClaims{}, errors.Wrap(err, "decoding access token claims")
	}
	if now.Unix() >= claims.Expiry {
		return AccessTokenClaims{}, errors.New("access token expired")
	}
	return claims, nil
}
