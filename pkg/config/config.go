// Package config provides unified configuration for the trygate gateway.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (TRYGATE_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the trygate gateway.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	Analytics     AnalyticsConfig     `yaml:"analytics"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // default: 8080
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 15s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 30s
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// Enabled toggles authentication. When false every request runs
	// under the fixed local development identity.
	Enabled bool `yaml:"enabled"` // default: true

	// DefaultProvider is the provider used when a request names none.
	DefaultProvider string `yaml:"default_provider"` // default: "aad"

	// AdminUser is the identity name granted admin access. Empty
	// denies every admin operation.
	AdminUser string `yaml:"admin_user"`

	// SessionTTL is how long a session cookie stays valid.
	SessionTTL time.Duration `yaml:"session_ttl"` // default: 1h

	// EncryptionKey protects session and anonymous cookies. Hex or
	// base64 of 32 raw bytes. Required when auth is enabled.
	EncryptionKey     string `yaml:"encryption_key"`
	EncryptionKeyFile string `yaml:"encryption_key_file"` // _file variant

	// BearerRPM limits bearer-authenticated API callers per subject.
	// 0 disables limiting.
	BearerRPM int `yaml:"bearer_rpm"` // default: 300

	// Providers holds per-provider application credentials. A provider
	// with no client id is not registered.
	Providers ProvidersConfig `yaml:"providers"`
}

// ProvidersConfig holds the credentials of each identity provider.
type ProvidersConfig struct {
	AAD      AADConfig      `yaml:"aad"`
	Google   ProviderConfig `yaml:"google"`
	Facebook ProviderConfig `yaml:"facebook"`
	Twitter  ProviderConfig `yaml:"twitter"`
}

// ProviderConfig describes one provider application registration.
type ProviderConfig struct {
	ClientID         string `yaml:"client_id"`
	ClientSecret     string `yaml:"client_secret"`
	ClientSecretFile string `yaml:"client_secret_file"` // _file variant
	RedirectURL      string `yaml:"redirect_url"`
}

// AADConfig extends ProviderConfig with the directory tenant.
type AADConfig struct {
	ProviderConfig `yaml:",inline"`
	TenantID       string `yaml:"tenant_id"` // default: "common"
}

// AnalyticsConfig holds analytics event store settings.
type AnalyticsConfig struct {
	Type     string         `yaml:"type"`     // "memory" or "postgres", default: "memory"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig controls log verbosity and debug categories.
// Both values can be overridden with TRYGATE_LOG_LEVEL and TRYGATE_DEBUG.
type LoggingConfig struct {
	Level string `yaml:"level"` // default: "INFO"
	Debug string `yaml:"debug"` // comma-separated categories, see pkg/debug
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Auth: AuthConfig{
			Enabled:         true,
			DefaultProvider: "aad",
			SessionTTL:      1 * time.Hour,
			BearerRPM:       300,
		},
		Analytics: AnalyticsConfig{
			Type:    "memory",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
			Logging: LoggingConfig{
				Level: "INFO",
			},
		},
	}
}
