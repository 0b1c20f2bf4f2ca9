package iam

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"os"
	"path/filepath"

	josev4 "github.com/go-jose/go-jose/v4"
	"github.com/pkg/errors"
)

// KeyPair is the Identity Authority's single ECDSA P-256 signing key, held
// in memory after load (read-only for signing, per spec.md §5 Shared
// resource policy).
type KeyPair struct {
	Private *ecdsa.PrivateKey
	KeyID   string
}

// LoadOrGenerateKeyPair loads the private key persisted at path, or
// generates and persists a new one if none exists. The key is generated
// once on first start and reused on every restart (spec.md §3 Signing key
// pair lifecycle). A key-load failure is fatal to the IA process, per
// spec.md §4.1 Failure semantics.
func LoadOrGenerateKeyPair(path string) (*KeyPair, error) {
	if data, err := os.ReadFile(path); err == nil {
		priv, err := parsePrivateKeyPEM(data)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing signing key at %s", path)
		}
		return newKeyPair(priv), nil
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "reading signing key at %s", path)
	}

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "generating ECDSA P-256 signing key")
	}
	if err := persistPrivateKeyPEM(path, priv); err != nil {
		return nil, errors.Wrapf(err, "persisting signing key at %s", path)
	}
	return newKeyPair(priv), nil
}

func newKeyPair(priv *ecdsa.PrivateKey) *KeyPair {
	return &KeyPair{Private: priv, KeyID: keyID(&priv.PublicKey)}
}

// keyID computes kid = hex(SHA-256(uncompressed coordinates)[:8]), per
// spec.md §3 Signing key pair.
func keyID(pub *ecdsa.PublicKey) string {
	uncompressed := elliptic.Marshal(pub.Curve, pub.X, pub.Y)
	sum := sha256.Sum256(uncompressed)
	return hex.EncodeToString(sum[:8])
}

func parsePrivateKeyPEM(data []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	return x509.ParseECPrivateKey(block.Bytes)
}

func persistPrivateKeyPEM(path string, priv *ecdsa.PrivateKey) error {
	der, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	block := &pem.Block{Type: "EC PRIVATE KEY", Bytes: der}
	return os.WriteFile(path, pem.EncodeToMemory(block), 0o600)
}

// JWKSDocument returns the public JWK Set this key pair publishes.
func (k *KeyPair) JWKSDocument() josev4.JSONWebKeySet {
	return josev4.JSONWebKeySet{
		Keys: []josev4.JSONWebKey{
			{
				Key:       k.Private.Public(),
				KeyID:     k.KeyID,
				Algorithm: string(josev4.ES256),
				Use:       "sig",
			},
		},
	}
}
