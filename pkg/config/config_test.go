package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedbroker/fedbroker/pkg/observability"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("FEDBROKER_DB_DSN", "postgres://localhost/fedbroker")
	t.Setenv("FEDBROKER_TOKEN_ENDPOINT", "http://localhost:35357/v3/auth/tokens")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, DefaultRelayStatePrefix, cfg.SAML.RelayStatePrefix)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.True(t, cfg.Cache.Enabled)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("FEDBROKER_DB_DSN", "file::memory:?cache=shared")
	t.Setenv("FEDBROKER_DB_DRIVER", "sqlite3")
	t.Setenv("FEDBROKER_TOKEN_ENDPOINT", "http://tokens.internal/v3/auth/tokens")
	t.Setenv("FEDBROKER_PORT", "8443")
	t.Setenv("FEDBROKER_LOG_LEVEL", "debug")
	t.Setenv("FEDBROKER_CACHE_TTL", "90s")
	t.Setenv("FEDBROKER_RELAY_STATE_PREFIX", "custom:")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8443", cfg.Server.Port)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "custom:", cfg.SAML.RelayStatePrefix)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fedbroker.yaml")
	content := `
server:
  port: "9000"
database:
  driver: sqlite3
  dsn: /var/lib/fedbroker/fed.db
saml:
  relay_state_prefix: "file:"
  idp_metadata_path: /etc/fedbroker/metadata.xml
auth:
  token_endpoint: http://tokens.internal/v3/auth/tokens
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("FEDBROKER_CONFIG_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "/var/lib/fedbroker/fed.db", cfg.Database.DSN)
	assert.Equal(t, "file:", cfg.SAML.RelayStatePrefix)
	assert.Equal(t, "/etc/fedbroker/metadata.xml", cfg.SAML.IdPMetadataPath)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fedbroker.yaml")
	content := `
database:
  driver: sqlite3
  dsn: /var/lib/fedbroker/fed.db
auth:
  token_endpoint: http://tokens.internal/v3/auth/tokens
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("FEDBROKER_CONFIG_FILE", path)
	t.Setenv("FEDBROKER_DB_DSN", "postgres://override/db")
	t.Setenv("FEDBROKER_DB_DRIVER", "postgres")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "postgres://override/db", cfg.Database.DSN)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing DSN", func(c *Config) { c.Database.DSN = "" }},
		{"bad driver", func(c *Config) { c.Database.Driver = "oracle" }},
		{"missing token endpoint", func(c *Config) { c.Auth.TokenEndpoint = "" }},
		{"missing relay prefix", func(c *Config) { c.SAML.RelayStatePrefix = "" }},
		{"bad cache size", func(c *Config) { c.Cache.MaxEntries = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Database.DSN = "postgres://localhost/fedbroker"
			cfg.Auth.TokenEndpoint = "http://localhost:35357/v3/auth/tokens"
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
