package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/modelfarm/internal/domain/models"
)

const (
	tokenKeySuffix    = "token"
	preimageKeySuffix = "preimage"
)

// CredentialStore keeps the credential under <prefix>token and
// <prefix>preimage, without expiry.
type CredentialStore struct {
	client redis.UniversalClient
	prefix string
}

// NewCredentialStore creates a store using keys starting with prefix.
func NewCredentialStore(client redis.UniversalClient, prefix string) *CredentialStore {
	return &CredentialStore{client: client, prefix: prefix}
}

// Load reads both keys. Missing keys read as empty.
func (s *CredentialStore) Load(ctx context.Context) (models.L402Credential, error) {
	values, err := s.client.MGet(ctx, s.prefix+tokenKeySuffix, s.prefix+preimageKeySuffix).Result()
	if err != nil {
		return models.L402Credential{}, fmt.Errorf("failed to load L402 credential from redis: %w", err)
	}
	var cred models.L402Credential
	if v, ok := values[0].(string); ok {
		cred.Token = v
	}
	if v, ok := values[1].(string); ok {
		cred.Preimage = v
	}
	return cred, nil
}

// Save writes both keys in one transaction.
func (s *CredentialStore) Save(ctx context.Context, cred models.L402Credential) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.prefix+tokenKeySuffix, cred.Token, 0)
	pipe.Set(ctx, s.prefix+preimageKeySuffix, cred.Preimage, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to execute redis transaction for L402 credential: %w", err)
	}
	return nil
}

// Location names the key prefix.
func (s *CredentialStore) Location() string {
	return "redis keys " + s.prefix + "*"
}
