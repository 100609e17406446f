package crypto

import (
	"context"
	"crypto/ed25519"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/turtacn/modelfarm/pkg/clock"
	"github.com/turtacn/modelfarm/pkg/constants"
	"github.com/turtacn/modelfarm/pkg/errors"
	"github.com/turtacn/modelfarm/pkg/logger"
)

// VerifiedClaims is what a successful verification proves about a token.
type VerifiedClaims struct {
	Subject   string    `json:"sub"`
	Issuer    string    `json:"iss"`
	Audience  []string  `json:"aud"`
	KeyID     string    `json:"kid"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`

	// Chain is true when the signing key came from an embedded identity
	// assertion rather than directly from the registry.
	Chain bool `json:"chain"`
}

// TokenVerifier checks identity tokens against a KeyRegistry.
type TokenVerifier struct {
	registry *KeyRegistry
	clock    clock.Clock
	log      logger.Logger
}

// NewTokenVerifier creates a verifier using registry for key resolution.
func NewTokenVerifier(registry *KeyRegistry, clk clock.Clock, log logger.Logger) *TokenVerifier {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &TokenVerifier{registry: registry, clock: clk, log: log}
}

// Verify checks, in order, the token's shape, key id, signature, audience and
// validity window. Only TokenExpired is retryable.
func (v *TokenVerifier) Verify(ctx context.Context, raw, audience string) (*VerifiedClaims, error) {
	header, unverified, err := parseUnverified(raw)
	if err != nil {
		v.log.Debug(ctx, "Rejected malformed token", logger.Fields{"reason": err.Error()})
		return nil, asMalformed(err)
	}

	key, chained, err := v.resolveKey(header, unverified)
	if err != nil {
		return nil, err
	}

	claims := &Claims{}
	_, err = v.parser(jwt.WithExpirationRequired()).ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	})
	if err != nil {
		if mapped := signatureError(err); mapped != nil {
			return nil, mapped
		}
	}
	if !slices.Contains([]string(claims.Audience), audience) {
		return nil, errors.ErrAudienceMismatch(audience, claims.Audience)
	}
	if err != nil {
		return nil, windowError(err, claims)
	}

	kid, _ := header.Header[constants.HeaderKeyKeyID].(string)
	out := &VerifiedClaims{
		Subject:  claims.Subject,
		Issuer:   claims.Issuer,
		Audience: claims.Audience,
		KeyID:    kid,
		Chain:    chained,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

func (v *TokenVerifier) parser(opts ...jwt.ParserOption) *jwt.Parser {
	base := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithTimeFunc(v.clock.Now),
		jwt.WithIssuedAt(),
	}
	return jwt.NewParser(append(base, opts...)...)
}

// resolveKey returns the key the outer token must verify under. A token with
// an embedded identity assertion is verified as a chain: the assertion is
// checked against the registry and its "pub" claim is the outer key.
func (v *TokenVerifier) resolveKey(header *jwt.Token, claims *Claims) (ed25519.PublicKey, bool, error) {
	identity, _ := header.Header[constants.HeaderKeyIdentity].(string)
	if identity == "" {
		key, err := v.registryKey(header)
		return key, false, err
	}

	assertionHeader, _, err := parseUnverified(identity)
	if err != nil {
		return nil, true, asMalformed(err)
	}
	rootKey, err := v.registryKey(assertionHeader)
	if err != nil {
		return nil, true, err
	}

	assertion := &Claims{}
	_, err = v.parser().ParseWithClaims(identity, assertion, func(*jwt.Token) (interface{}, error) {
		return rootKey, nil
	})
	if err != nil {
		if mapped := signatureError(err); mapped != nil {
			return nil, true, mapped
		}
		return nil, true, windowError(err, assertion)
	}
	if assertion.Subject != claims.Subject {
		return nil, true, errors.ErrInvalidSignature("identity assertion was issued for a different subject")
	}
	key, err := ParsePublicKey(assertion.PublicKey)
	if err != nil {
		return nil, true, errors.ErrMalformedToken("identity assertion public key: " + err.Error())
	}
	return key, true, nil
}

func (v *TokenVerifier) registryKey(token *jwt.Token) (ed25519.PublicKey, error) {
	kid, _ := token.Header[constants.HeaderKeyKeyID].(string)
	if kid == "" {
		return nil, errors.ErrUnknownKeyID("")
	}
	return v.registry.PublicKey(kid)
}

func asMalformed(err error) error {
	if errors.HasCode(err, errors.CodeMalformedToken) {
		return err
	}
	return errors.ErrMalformedToken(err.Error())
}

// signatureError maps structural and signature failures. It returns nil for
// claim validation failures, which the caller orders after the audience check.
func signatureError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return errors.ErrMalformedToken(err.Error())
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return errors.ErrInvalidSignature(err.Error())
	default:
		return nil
	}
}

func windowError(err error, claims *Claims) error {
	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	switch {
	case errors.Is(err, jwt.ErrTokenExpired),
		errors.Is(err, jwt.ErrTokenNotValidYet),
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return errors.ErrTokenExpired(expiresAt).WithCause(err)
	default:
		return errors.ErrMalformedToken(err.Error())
	}
}
