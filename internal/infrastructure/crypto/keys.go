// Package crypto implements the Ed25519 identity token format: a signing
// authority for self-issued tokens, a key registry, and a verifier.
package crypto

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/turtacn/modelfarm/pkg/constants"
)

// Claims is the claim set carried by identity tokens and identity assertions.
// PublicKey is only set on assertions, where it binds the holder's key.
type Claims struct {
	PublicKey string `json:"pub,omitempty"`
	jwt.RegisteredClaims
}

// decodeBase64 accepts standard and URL alphabets, padded or not.
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, enc := range []*base64.Encoding{
		base64.RawURLEncoding,
		base64.URLEncoding,
		base64.StdEncoding,
		base64.RawStdEncoding,
	} {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// ParsePrivateKey decodes a marshaled Ed25519 private key. Accepted forms are
// "k2.secret.<base64url>" and bare base64 of either the 64-byte key or the
// 32-byte seed.
func ParsePrivateKey(marshaled string) (ed25519.PrivateKey, error) {
	marshaled = strings.TrimSpace(marshaled)
	if marshaled == "" {
		return nil, fmt.Errorf("private key is empty")
	}
	raw, err := decodeBase64(strings.TrimPrefix(marshaled, constants.PrivateKeyPrefix))
	if err != nil {
		return nil, fmt.Errorf("private key is not base64: %w", err)
	}
	switch len(raw) {
	case ed25519.PrivateKeySize:
		key := ed25519.PrivateKey(raw)
		// The trailing half must be the public key derived from the seed.
		derived := ed25519.NewKeyFromSeed(key.Seed())
		if !derived.Equal(key) {
			return nil, fmt.Errorf("private key halves do not match")
		}
		return key, nil
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	default:
		return nil, fmt.Errorf("private key has %d bytes, want %d or %d", len(raw), ed25519.PrivateKeySize, ed25519.SeedSize)
	}
}

// EncodePrivateKey renders key in the "k2.secret." form.
func EncodePrivateKey(key ed25519.PrivateKey) string {
	return constants.PrivateKeyPrefix + base64.RawURLEncoding.EncodeToString(key)
}

// ParsePublicKey decodes a base64 Ed25519 public key.
func ParsePublicKey(encoded string) (ed25519.PublicKey, error) {
	raw, err := decodeBase64(encoded)
	if err != nil {
		return nil, fmt.Errorf("public key is not base64: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key has %d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// EncodePublicKey renders key as standard base64, the form used in
// REPL_PUBKEYS and in the assertion "pub" claim.
func EncodePublicKey(key ed25519.PublicKey) string {
	return base64.StdEncoding.EncodeToString(key)
}
