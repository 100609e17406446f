package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"time"

	"github.com/turtacn/modelfarm/pkg/errors"
)

// DevIdentity is a freshly generated, self-consistent identity: a root key that
// vouches for a holder key, and the environment values a process needs to
// sign and verify tokens with it.
type DevIdentity struct {
	ReplID     string
	RootKeyID  string
	PrivateKey string // REPL_IDENTITY_KEY
	Identity   string // REPL_IDENTITY
	PublicKeys map[string]string
}

// GenerateDevIdentity creates a root key and a holder key for replid and mints
// the assertion binding them.
func GenerateDevIdentity(replid, rootKeyID string, issuedAt time.Time, lifetime time.Duration) (*DevIdentity, error) {
	rootPub, rootKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.ErrConfiguration("failed to generate root key").WithCause(err)
	}
	holderPub, holderKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.ErrConfiguration("failed to generate holder key").WithCause(err)
	}

	assertion, err := MintAssertion(rootKey, rootKeyID, replid, holderPub, issuedAt, lifetime)
	if err != nil {
		return nil, err
	}

	return &DevIdentity{
		ReplID:     replid,
		RootKeyID:  rootKeyID,
		PrivateKey: EncodePrivateKey(holderKey),
		Identity:   assertion,
		PublicKeys: map[string]string{rootKeyID: EncodePublicKey(rootPub)},
	}, nil
}

// Registry returns a KeyRegistry holding the root key.
func (d *DevIdentity) Registry() *KeyRegistry {
	return NewKeyRegistry(d.PublicKeys)
}

// PublicKeysJSON renders the REPL_PUBKEYS value.
func (d *DevIdentity) PublicKeysJSON() string {
	data, _ := json.Marshal(d.PublicKeys)
	return string(data)
}

// Authority builds the SigningAuthority for the holder key.
func (d *DevIdentity) Authority(opts ...AuthorityOption) (*SigningAuthority, error) {
	return NewSigningAuthority(d.PrivateKey, d.Identity, d.ReplID, opts...)
}
