// Package vault keeps the L402 credential in a HashiCorp Vault KV v2 secret.
package vault

import (
	"context"
	"fmt"

	vault "github.com/hashicorp/vault/api"

	"github.com/turtacn/modelfarm/internal/config"
	"github.com/turtacn/modelfarm/internal/domain/models"
	"github.com/turtacn/modelfarm/pkg/errors"
	"github.com/turtacn/modelfarm/pkg/logger"
)

// NewClient creates a Vault client for cfg. Empty fields fall back to the
// standard VAULT_ADDR and VAULT_TOKEN environment.
func NewClient(cfg config.VaultConfig) (*vault.Client, error) {
	vaultConfig := vault.DefaultConfig()
	if cfg.Address != "" {
		vaultConfig.Address = cfg.Address
	}
	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, errors.ErrConfiguration("failed to create vault client").WithCause(err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	return client, nil
}

// CredentialStore reads and writes the "token" and "preimage" fields of one
// KV v2 secret.
type CredentialStore struct {
	kv     *vault.KVv2
	mount  string
	path   string
	logger logger.Logger
}

// NewCredentialStore creates a store for <mount>/data/<path>.
func NewCredentialStore(client *vault.Client, mount, path string, log logger.Logger) *CredentialStore {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &CredentialStore{
		kv:     client.KVv2(mount),
		mount:  mount,
		path:   path,
		logger: log.WithFields(logger.Fields{"component": "vault_store"}),
	}
}

// Load reads the secret. A missing secret reads as empty.
func (s *CredentialStore) Load(ctx context.Context) (models.L402Credential, error) {
	secret, err := s.kv.Get(ctx, s.path)
	if errors.Is(err, vault.ErrSecretNotFound) {
		return models.L402Credential{}, nil
	}
	if err != nil {
		s.logger.Error(ctx, "failed to read L402 credential from Vault", err, logger.Fields{"path": s.Location()})
		return models.L402Credential{}, fmt.Errorf("could not read L402 credential from vault: %w", err)
	}

	var cred models.L402Credential
	if secret != nil && secret.Data != nil {
		cred.Token, _ = secret.Data["token"].(string)
		cred.Preimage, _ = secret.Data["preimage"].(string)
	}
	return cred, nil
}

// Save writes a new version of the secret.
func (s *CredentialStore) Save(ctx context.Context, cred models.L402Credential) error {
	_, err := s.kv.Put(ctx, s.path, map[string]interface{}{
		"token":    cred.Token,
		"preimage": cred.Preimage,
	})
	if err != nil {
		s.logger.Error(ctx, "failed to write L402 credential to Vault", err, logger.Fields{"path": s.Location()})
		return fmt.Errorf("could not write L402 credential to vault: %w", err)
	}
	return nil
}

// Location names the secret.
func (s *CredentialStore) Location() string {
	return fmt.Sprintf("vault %s/data/%s", s.mount, s.path)
}
