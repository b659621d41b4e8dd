package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fedbroker/fedbroker/pkg/observability"
)

// DefaultRelayStatePrefix is used when a service provider is created without
// an explicit relay_state_prefix.
const DefaultRelayStatePrefix = "ss:mem:"

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Cache         CacheConfig         `yaml:"cache"`
	SAML          SAMLConfig          `yaml:"saml"`
	OIDC          OIDCConfig          `yaml:"oidc"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds SQL storage configuration
type DatabaseConfig struct {
	Driver       string        `yaml:"driver"` // "postgres" or "sqlite3"
	DSN          string        `yaml:"dsn"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	ConnTimeout  time.Duration `yaml:"conn_timeout"`
}

// CacheConfig holds the read-cache configuration for the auth hot path
type CacheConfig struct {
	Enabled       bool          `yaml:"enabled"`
	MaxEntries    int           `yaml:"max_entries"`
	TTL           time.Duration `yaml:"ttl"`
	RedisURL      string        `yaml:"redis_url"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
}

// SAMLConfig holds federation SAML settings
type SAMLConfig struct {
	// RelayStatePrefix is the default relay_state_prefix applied to service
	// providers created without one.
	RelayStatePrefix string `yaml:"relay_state_prefix"`
	// IdPMetadataPath is the path of the XML metadata document served at
	// /v3/OS-FEDERATION/saml2/metadata.
	IdPMetadataPath string `yaml:"idp_metadata_path"`

	// The remaining fields configure assertion verification for the saml2
	// auth frontend. The frontend is enabled when IdPCertificatePath is set.
	IdPSSOURL          string `yaml:"idp_sso_url"`
	IdPIssuer          string `yaml:"idp_issuer"`
	SPIssuer           string `yaml:"sp_issuer"`
	CallbackURL        string `yaml:"callback_url"`
	AudienceURI        string `yaml:"audience_uri"`
	IdPCertificatePath string `yaml:"idp_certificate_path"`
}

// OIDCConfig holds the openid auth frontend settings. The frontend is
// enabled when IssuerURL is set.
type OIDCConfig struct {
	IssuerURL    string   `yaml:"issuer_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURL  string   `yaml:"redirect_url"`
	Scopes       []string `yaml:"scopes"`
}

// AuthConfig holds the downstream token pipeline settings
type AuthConfig struct {
	// TokenEndpoint is the URL of the token-issuance service federated auth
	// payloads are submitted to.
	TokenEndpoint string        `yaml:"token_endpoint"`
	Timeout       time.Duration `yaml:"timeout"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel `yaml:"-"`
	LogLevelName   string                 `yaml:"log_level"`
	MetricsEnabled bool                   `yaml:"metrics_enabled"`
}

// LoadConfig loads configuration from the optional YAML file named by
// FEDBROKER_CONFIG_FILE, then applies environment variable overrides.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := getEnv("FEDBROKER_CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	cfg.Observability.LogLevel = parseLogLevel(cfg.Observability.LogLevelName)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "5000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:       "postgres",
			MaxOpenConns: 20,
			MaxIdleConns: 2,
			ConnTimeout:  10 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxEntries: 1024,
			TTL:        5 * time.Minute,
		},
		SAML: SAMLConfig{
			RelayStatePrefix: DefaultRelayStatePrefix,
		},
		Auth: AuthConfig{
			Timeout: 30 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevelName:   "info",
			MetricsEnabled: true,
		},
	}
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnv("FEDBROKER_HOST", c.Server.Host)
	c.Server.Port = getEnv("FEDBROKER_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvDuration("FEDBROKER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("FEDBROKER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("FEDBROKER_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("FEDBROKER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Database.Driver = getEnv("FEDBROKER_DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("FEDBROKER_DB_DSN", c.Database.DSN)
	c.Database.MaxOpenConns = getEnvInt("FEDBROKER_DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getEnvInt("FEDBROKER_DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.ConnTimeout = getEnvDuration("FEDBROKER_DB_CONN_TIMEOUT", c.Database.ConnTimeout)

	c.Cache.Enabled = getEnvBool("FEDBROKER_CACHE_ENABLED", c.Cache.Enabled)
	c.Cache.MaxEntries = getEnvInt("FEDBROKER_CACHE_MAX_ENTRIES", c.Cache.MaxEntries)
	c.Cache.TTL = getEnvDuration("FEDBROKER_CACHE_TTL", c.Cache.TTL)
	c.Cache.RedisURL = getEnv("FEDBROKER_REDIS_URL", c.Cache.RedisURL)
	c.Cache.RedisPassword = getEnv("FEDBROKER_REDIS_PASSWORD", c.Cache.RedisPassword)
	c.Cache.RedisDB = getEnvInt("FEDBROKER_REDIS_DB", c.Cache.RedisDB)

	c.SAML.RelayStatePrefix = getEnv("FEDBROKER_RELAY_STATE_PREFIX", c.SAML.RelayStatePrefix)
	c.SAML.IdPMetadataPath = getEnv("FEDBROKER_IDP_METADATA_PATH", c.SAML.IdPMetadataPath)
	c.SAML.IdPSSOURL = getEnv("FEDBROKER_SAML_IDP_SSO_URL", c.SAML.IdPSSOURL)
	c.SAML.IdPIssuer = getEnv("FEDBROKER_SAML_IDP_ISSUER", c.SAML.IdPIssuer)
	c.SAML.SPIssuer = getEnv("FEDBROKER_SAML_SP_ISSUER", c.SAML.SPIssuer)
	c.SAML.CallbackURL = getEnv("FEDBROKER_SAML_CALLBACK_URL", c.SAML.CallbackURL)
	c.SAML.AudienceURI = getEnv("FEDBROKER_SAML_AUDIENCE_URI", c.SAML.AudienceURI)
	c.SAML.IdPCertificatePath = getEnv("FEDBROKER_SAML_IDP_CERT_PATH", c.SAML.IdPCertificatePath)

	c.OIDC.IssuerURL = getEnv("FEDBROKER_OIDC_ISSUER_URL", c.OIDC.IssuerURL)
	c.OIDC.ClientID = getEnv("FEDBROKER_OIDC_CLIENT_ID", c.OIDC.ClientID)
	c.OIDC.ClientSecret = getEnv("FEDBROKER_OIDC_CLIENT_SECRET", c.OIDC.ClientSecret)
	c.OIDC.RedirectURL = getEnv("FEDBROKER_OIDC_REDIRECT_URL", c.OIDC.RedirectURL)
	if scopes := getEnv("FEDBROKER_OIDC_SCOPES", ""); scopes != "" {
		c.OIDC.Scopes = strings.Split(scopes, ",")
	}

	c.Auth.TokenEndpoint = getEnv("FEDBROKER_TOKEN_ENDPOINT", c.Auth.TokenEndpoint)
	c.Auth.Timeout = getEnvDuration("FEDBROKER_TOKEN_TIMEOUT", c.Auth.Timeout)

	c.Observability.LogLevelName = getEnv("FEDBROKER_LOG_LEVEL", c.Observability.LogLevelName)
	c.Observability.MetricsEnabled = getEnvBool("FEDBROKER_METRICS_ENABLED", c.Observability.MetricsEnabled)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("invalid database driver: %s (must be postgres or sqlite3)", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}

	if c.SAML.RelayStatePrefix == "" {
		return fmt.Errorf("relay state prefix is required")
	}

	if c.Auth.TokenEndpoint == "" {
		return fmt.Errorf("token endpoint is required")
	}

	if c.OIDC.IssuerURL != "" && c.OIDC.ClientID == "" {
		return fmt.Errorf("OIDC client id is required when an issuer is configured")
	}

	if c.Cache.Enabled && c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache max entries must be positive when cache is enabled")
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
