package config

import (
	"context"
	"strings"

	"github.com/spf13/viper"
	"github.com/turtacn/modelfarm/pkg/constants"
	"github.com/turtacn/modelfarm/pkg/errors"
	"github.com/turtacn/modelfarm/pkg/logger"
)

// EnvPrefix is prepended to every environment override, e.g. MODELFARM_CLIENT_ROOT_URL.
const EnvPrefix = "MODELFARM"

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("client.root_url", constants.DefaultRootURL)
	v.SetDefault("client.stream_timeout", constants.DefaultStreamTimeout)
	v.SetDefault("client.chunk_size", constants.DefaultChunkSize)

	v.SetDefault("identity.audience", constants.DefaultAudience)
	v.SetDefault("identity.token_ttl", constants.DefaultTokenTTL)
	v.SetDefault("identity.sidecar_url", constants.DefaultSidecarURL)
	v.SetDefault("identity.signed_token_lifetime", constants.DefaultSignedTokenLifetime)

	v.SetDefault("l402.enabled", true)
	v.SetDefault("l402.matador_url", constants.DefaultMatadorURL)
	v.SetDefault("l402.store", StoreDotenv)
	v.SetDefault("l402.dotenv_path", ".env")
	v.SetDefault("l402.preimage", "")
	v.SetDefault("l402.interactive", true)
	v.SetDefault("l402.auto_persist", false)
	v.SetDefault("l402.watch", false)

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "modelfarm:l402:")

	v.SetDefault("vault.address", "")
	v.SetDefault("vault.token", "")
	v.SetDefault("vault.mount_path", "secret")
	v.SetDefault("vault.secret_path", "modelfarm/l402")

	v.SetDefault("log.level", string(constants.LogLevelInfo))
	v.SetDefault("log.format", "json")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.jaeger_endpoint", "")
	v.SetDefault("tracing.service_name", "modelfarm-client")
	v.SetDefault("tracing.sampling_rate", 1.0)
}

// Default returns the configuration with only defaults applied.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// LoadConfig loads the configuration from file and environment variables. An
// explicit path takes precedence over the search locations.
func LoadConfig(path string, log logger.Logger) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("modelfarm")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/modelfarm")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.ErrConfiguration("failed to read config file").WithCause(err)
		}
	} else if log != nil {
		log.Debug(context.Background(), "Loaded config file", logger.Fields{"path": v.ConfigFileUsed()})
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.ErrConfiguration("failed to unmarshal config").WithCause(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
