package crypto

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/patrickmn/go-cache"
	"github.com/turtacn/modelfarm/pkg/constants"
	"github.com/turtacn/modelfarm/pkg/errors"
)

// KeyRegistry maps key ids to Ed25519 public keys. Entries are kept in their
// encoded form and decoded lazily; decoded keys are memoized.
type KeyRegistry struct {
	mu      sync.RWMutex
	encoded map[string]string
	decoded *cache.Cache
}

// NewKeyRegistry creates a registry from kid → base64 public key.
func NewKeyRegistry(keys map[string]string) *KeyRegistry {
	encoded := make(map[string]string, len(keys))
	for kid, key := range keys {
		encoded[kid] = key
	}
	return &KeyRegistry{
		encoded: encoded,
		decoded: cache.New(constants.PublicKeyCacheTTL, constants.PublicKeyCacheCleanup),
	}
}

// ParseKeyRegistry reads the JSON object form used by REPL_PUBKEYS.
func ParseKeyRegistry(data []byte) (*KeyRegistry, error) {
	var keys map[string]string
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, errors.ErrConfiguration("public key registry is not a JSON object of strings").WithCause(err)
	}
	return NewKeyRegistry(keys), nil
}

// KeyRegistryFromEnv loads the registry from REPL_PUBKEYS.
func KeyRegistryFromEnv() (*KeyRegistry, error) {
	raw, ok := os.LookupEnv(constants.EnvPublicKeys)
	if !ok || raw == "" {
		return nil, errors.ErrMissingEnvironmentVariable(constants.EnvPublicKeys)
	}
	return ParseKeyRegistry([]byte(raw))
}

// Add registers or replaces a key.
func (r *KeyRegistry) Add(kid string, key ed25519.PublicKey) {
	r.mu.Lock()
	r.encoded[kid] = EncodePublicKey(key)
	r.mu.Unlock()
	r.decoded.Set(kid, key, cache.DefaultExpiration)
}

// KeyIDs returns the registered key ids.
func (r *KeyRegistry) KeyIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.encoded))
	for kid := range r.encoded {
		ids = append(ids, kid)
	}
	return ids
}

// PublicKey resolves kid. An unregistered kid is an UnknownKeyID error; a
// registered but undecodable key is a ConfigurationError.
func (r *KeyRegistry) PublicKey(kid string) (ed25519.PublicKey, error) {
	if cached, found := r.decoded.Get(kid); found {
		return cached.(ed25519.PublicKey), nil
	}

	r.mu.RLock()
	encoded, ok := r.encoded[kid]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.ErrUnknownKeyID(kid)
	}

	key, err := ParsePublicKey(encoded)
	if err != nil {
		return nil, errors.ErrConfiguration(fmt.Sprintf("public key %q is invalid", kid)).WithCause(err)
	}
	r.decoded.Set(kid, key, cache.DefaultExpiration)
	return key, nil
}
