package config

import (
	"fmt"
	"time"

	"github.com/turtacn/modelfarm/pkg/constants"
	"github.com/turtacn/modelfarm/pkg/errors"
)

// Config holds the client's configuration.
type Config struct {
	Client   ClientConfig   `mapstructure:"client"`
	Identity IdentityConfig `mapstructure:"identity"`
	L402     L402Config     `mapstructure:"l402"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Vault    VaultConfig    `mapstructure:"vault"`
	Log      LogConfig      `mapstructure:"log"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

type ClientConfig struct {
	RootURL       string        `mapstructure:"root_url"`
	StreamTimeout time.Duration `mapstructure:"stream_timeout"`
	ChunkSize     int           `mapstructure:"chunk_size"`
}

type IdentityConfig struct {
	Audience            string        `mapstructure:"audience"`
	TokenTTL            time.Duration `mapstructure:"token_ttl"`
	SidecarURL          string        `mapstructure:"sidecar_url"`
	SignedTokenLifetime time.Duration `mapstructure:"signed_token_lifetime"`
}

// L402Config controls the payment-backed fallback used outside the host platform.
type L402Config struct {
	Enabled     bool   `mapstructure:"enabled"`
	MatadorURL  string `mapstructure:"matador_url"`
	Store       string `mapstructure:"store"` // dotenv, redis or vault
	DotenvPath  string `mapstructure:"dotenv_path"`
	Preimage    string `mapstructure:"preimage"`
	Interactive bool   `mapstructure:"interactive"`
	AutoPersist bool   `mapstructure:"auto_persist"`
	Watch       bool   `mapstructure:"watch"`
}

type RedisConfig struct {
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type VaultConfig struct {
	Address    string `mapstructure:"address"`
	Token      string `mapstructure:"token"`
	MountPath  string `mapstructure:"mount_path"`
	SecretPath string `mapstructure:"secret_path"`
}

type LogConfig struct {
	Level  constants.LogLevel `mapstructure:"level"`
	Format string             `mapstructure:"format"`
}

type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

// Store kinds accepted by L402Config.Store.
const (
	StoreDotenv = "dotenv"
	StoreRedis  = "redis"
	StoreVault  = "vault"
)

// Validate checks for essential configuration values.
func (c *Config) Validate() error {
	if c.Client.RootURL == "" {
		return errors.ErrConfiguration("client.root_url must not be empty")
	}
	if c.Identity.Audience == "" {
		return errors.ErrConfiguration("identity.audience must not be empty")
	}
	if c.Identity.TokenTTL <= 0 {
		return errors.ErrConfiguration(fmt.Sprintf("identity.token_ttl must be positive, got %s", c.Identity.TokenTTL))
	}
	if c.Client.ChunkSize <= 0 {
		return errors.ErrConfiguration(fmt.Sprintf("client.chunk_size must be positive, got %d", c.Client.ChunkSize))
	}
	switch c.L402.Store {
	case StoreDotenv, StoreRedis, StoreVault:
	default:
		return errors.ErrConfiguration(fmt.Sprintf("l402.store %q is not one of dotenv, redis, vault", c.L402.Store))
	}
	return nil
}
