// Package auth verifies the API keys presented by administrative requests.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/go-faster/errors"
)

// ErrUnauthorized is returned for unknown, inactive or mismatched keys. It
// carries no detail so callers cannot distinguish the failure modes.
var ErrUnauthorized = errors.New("unauthorized")

// APIKeyInfo is one provisioned credential: the stored hash of its secret
// plus the scopes it grants.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// Repository resolves stored credentials by key hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// HashKey returns the hex HMAC-SHA256 of a raw key under the given pepper.
// Seeding and verification must agree on this encoding.
func HashKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verifier authenticates raw API keys against their peppered HMAC hashes.
type Verifier struct {
	apikeys Repository
	pepper  []byte
}

// NewVerifier creates a Verifier over the given key store and HMAC pepper.
func NewVerifier(apikeys Repository, pepper []byte) *Verifier {
	return &Verifier{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// Verify hashes the presented key, resolves the hash, and re-compares the
// digest against the stored hash in constant time.
func (v *Verifier) Verify(ctx context.Context, key string) (*APIKeyInfo, error) {
	digest := HashKey(v.pepper, key)

	info, err := v.apikeys.FindByHash(ctx, digest)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(digest), []byte(info.KeyHash)) != 1 {
		return nil, ErrUnauthorized
	}
	return info, nil
}
