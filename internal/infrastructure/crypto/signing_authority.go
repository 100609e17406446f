package crypto

import (
	"crypto/ed25519"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/turtacn/modelfarm/pkg/clock"
	"github.com/turtacn/modelfarm/pkg/constants"
	"github.com/turtacn/modelfarm/pkg/errors"
)

// SigningAuthority issues identity tokens for one replid. It holds the
// Ed25519 private key and the identity assertion binding that key to the
// replid; both are immutable after construction.
type SigningAuthority struct {
	privateKey ed25519.PrivateKey
	identity   string
	replid     string
	keyID      string
	lifetime   time.Duration
	clock      clock.Clock
}

// AuthorityOption customizes a SigningAuthority.
type AuthorityOption func(*SigningAuthority)

// WithLifetime sets the exp-iat span of issued tokens.
func WithLifetime(d time.Duration) AuthorityOption {
	return func(a *SigningAuthority) {
		if d > 0 {
			a.lifetime = d
		}
	}
}

// WithClock sets the time source for iat/exp.
func WithClock(c clock.Clock) AuthorityOption {
	return func(a *SigningAuthority) { a.clock = c }
}

// WithKeyID overrides the key id written to issued headers. By default the
// assertion's own key id is used, naming the root of the chain.
func WithKeyID(kid string) AuthorityOption {
	return func(a *SigningAuthority) { a.keyID = kid }
}

// NewSigningAuthority validates the identity material and returns an
// authority. Every inconsistency is a ConfigurationError.
func NewSigningAuthority(marshaledPrivateKey, marshaledIdentity, replid string, opts ...AuthorityOption) (*SigningAuthority, error) {
	if replid == "" {
		return nil, errors.ErrConfiguration("replid is empty")
	}
	key, err := ParsePrivateKey(marshaledPrivateKey)
	if err != nil {
		return nil, errors.ErrConfiguration("invalid identity private key").WithCause(err)
	}
	if marshaledIdentity == "" {
		return nil, errors.ErrConfiguration("identity assertion is empty")
	}

	assertion, claims, err := parseUnverified(marshaledIdentity)
	if err != nil {
		return nil, errors.ErrConfiguration("identity assertion cannot be parsed").WithCause(err)
	}
	bound, err := ParsePublicKey(claims.PublicKey)
	if err != nil {
		return nil, errors.ErrConfiguration("identity assertion has no usable public key").WithCause(err)
	}
	if !bound.Equal(key.Public()) {
		return nil, errors.ErrConfiguration("identity assertion public key does not match the private key")
	}
	if claims.Subject != replid {
		return nil, errors.ErrConfiguration("identity assertion subject does not match the replid").
			WithMetadata("replid", replid).
			WithMetadata("subject", claims.Subject)
	}

	a := &SigningAuthority{
		privateKey: key,
		identity:   marshaledIdentity,
		replid:     replid,
		lifetime:   constants.DefaultSignedTokenLifetime,
		clock:      clock.Real(),
	}
	if kid, ok := assertion.Header[constants.HeaderKeyKeyID].(string); ok {
		a.keyID = kid
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// ReplID returns the identity tokens are issued for.
func (a *SigningAuthority) ReplID() string { return a.replid }

// KeyID returns the key id written to issued headers.
func (a *SigningAuthority) KeyID() string { return a.keyID }

// PublicKey returns the public half of the signing key.
func (a *SigningAuthority) PublicKey() ed25519.PublicKey {
	return a.privateKey.Public().(ed25519.PublicKey)
}

// Sign issues a token scoped to audience.
func (a *SigningAuthority) Sign(audience string) (string, error) {
	if audience == "" {
		return "", errors.ErrConfiguration("audience must not be empty")
	}
	now := a.clock.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    a.replid,
			Subject:   a.replid,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.lifetime)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header[constants.HeaderKeyVersion] = constants.TokenVersion
	token.Header[constants.HeaderKeyIdentity] = a.identity
	if a.keyID != "" {
		token.Header[constants.HeaderKeyKeyID] = a.keyID
	}
	signed, err := token.SignedString(a.privateKey)
	if err != nil {
		return "", errors.ErrConfiguration("failed to sign identity token").WithCause(err)
	}
	return signed, nil
}

// MintAssertion has a root key vouch for replid's public key. The result is
// the identity assertion a SigningAuthority embeds in its tokens. A zero
// lifetime produces an assertion without exp.
func MintAssertion(root ed25519.PrivateKey, rootKeyID, replid string, holder ed25519.PublicKey, issuedAt time.Time, lifetime time.Duration) (string, error) {
	if replid == "" || rootKeyID == "" {
		return "", errors.ErrConfiguration("assertion requires a replid and a root key id")
	}
	claims := Claims{
		PublicKey: EncodePublicKey(holder),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  replid,
			IssuedAt: jwt.NewNumericDate(issuedAt),
		},
	}
	if lifetime > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(issuedAt.Add(lifetime))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header[constants.HeaderKeyVersion] = constants.TokenVersion
	token.Header[constants.HeaderKeyKeyID] = rootKeyID
	signed, err := token.SignedString(root)
	if err != nil {
		return "", errors.ErrConfiguration("failed to sign identity assertion").WithCause(err)
	}
	return signed, nil
}

// parseUnverified decodes a token and checks its header shape without
// verifying the signature.
func parseUnverified(raw string) (*jwt.Token, *Claims, error) {
	claims := &Claims{}
	token, _, err := jwt.NewParser().ParseUnverified(raw, claims)
	if err != nil {
		return nil, nil, err
	}
	if token.Method.Alg() != jwt.SigningMethodEdDSA.Alg() {
		return nil, nil, errors.ErrMalformedToken("unexpected algorithm " + token.Method.Alg())
	}
	if ver, _ := token.Header[constants.HeaderKeyVersion].(string); ver != constants.TokenVersion {
		return nil, nil, errors.ErrMalformedToken("unsupported token version")
	}
	return token, claims, nil
}
