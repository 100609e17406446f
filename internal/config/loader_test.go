package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/modelfarm/pkg/constants"
	"github.com/turtacn/modelfarm/pkg/errors"
	"github.com/turtacn/modelfarm/pkg/logger"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, constants.DefaultRootURL, cfg.Client.RootURL)
	assert.Equal(t, constants.DefaultAudience, cfg.Identity.Audience)
	assert.Equal(t, 300*time.Second, cfg.Identity.TokenTTL)
	assert.Equal(t, 15*time.Second, cfg.Client.StreamTimeout)
	assert.Equal(t, 128, cfg.Client.ChunkSize)
	assert.Equal(t, StoreDotenv, cfg.L402.Store)
	assert.True(t, cfg.L402.Enabled)
	assert.Equal(t, constants.LogLevelInfo, cfg.Log.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "modelfarm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
client:
  root_url: https://example.test
identity:
  audience: custom@example.test
  token_ttl: 60s
l402:
  store: redis
`), 0o600))

	t.Setenv("MODELFARM_IDENTITY_TOKEN_TTL", "90s")
	t.Setenv("MODELFARM_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(path, logger.NewNoopLogger())
	require.NoError(t, err)

	assert.Equal(t, "https://example.test", cfg.Client.RootURL)
	assert.Equal(t, "custom@example.test", cfg.Identity.Audience)
	assert.Equal(t, 90*time.Second, cfg.Identity.TokenTTL, "environment overrides the file")
	assert.Equal(t, StoreRedis, cfg.L402.Store)
	assert.Equal(t, constants.DefaultSidecarURL, cfg.Identity.SidecarURL)
	assert.Equal(t, constants.LogLevelDebug, cfg.Log.Level)
}

func TestLoadConfigRejectsUnknownStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "modelfarm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("l402:\n  store: floppy\n"), 0o600))

	_, err := LoadConfig(path, nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeConfiguration))
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Identity.Audience = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Client.ChunkSize = 0
	assert.Error(t, cfg.Validate())
}
