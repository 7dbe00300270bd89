package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, TRYGATE_CONFIG env, ./config.yaml, /etc/trygate/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	// Start with defaults.
	cfg := Defaults()

	// Discover and load YAML config file.
	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	// Apply environment variable overrides.
	applyEnvOverrides(&cfg)

	// Resolve _file references.
	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	// Validate.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. TRYGATE_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/trygate/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	// Explicit path takes priority.
	if configPath != "" {
		return configPath
	}

	// Check TRYGATE_CONFIG env var.
	if envPath := os.Getenv("TRYGATE_CONFIG"); envPath != "" {
		return envPath
	}

	// Check common locations.
	candidates := []string{
		"config.yaml",
		"/etc/trygate/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps TRYGATE_* environment variables to config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRYGATE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TRYGATE_AUTH_ENABLED"); v != "" {
		cfg.Auth.Enabled = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("TRYGATE_DEFAULT_PROVIDER"); v != "" {
		cfg.Auth.DefaultProvider = v
	}
	if v := os.Getenv("TRYGATE_ADMIN_USER"); v != "" {
		cfg.Auth.AdminUser = v
	}
	if v := os.Getenv("TRYGATE_SESSION_TTL"); v != "" {
		if ttl, err := time.ParseDuration(v); err == nil {
			cfg.Auth.SessionTTL = ttl
		}
	}
	if v := os.Getenv("TRYGATE_ENCRYPTION_KEY"); v != "" {
		cfg.Auth.EncryptionKey = v
	}
	if v := os.Getenv("TRYGATE_BEARER_RPM"); v != "" {
		if rpm, err := strconv.Atoi(v); err == nil {
			cfg.Auth.BearerRPM = rpm
		}
	}
	if v := os.Getenv("TRYGATE_ANALYTICS"); v != "" {
		cfg.Analytics.Type = v
	}
	if v := os.Getenv("TRYGATE_POSTGRES_DSN"); v != "" {
		cfg.Analytics.Postgres.DSN = v
	}
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	// auth.encryption_key_file -> auth.encryption_key
	if cfg.Auth.EncryptionKeyFile != "" && cfg.Auth.EncryptionKey == "" {
		val, err := readSecretFile(cfg.Auth.EncryptionKeyFile)
		if err != nil {
			return fmt.Errorf("auth.encryption_key_file: %w", err)
		}
		cfg.Auth.EncryptionKey = val
	}

	// analytics.postgres.dsn_file -> analytics.postgres.dsn
	if cfg.Analytics.Postgres.DSNFile != "" && cfg.Analytics.Postgres.DSN == "" {
		val, err := readSecretFile(cfg.Analytics.Postgres.DSNFile)
		if err != nil {
			return fmt.Errorf("analytics.postgres.dsn_file: %w", err)
		}
		cfg.Analytics.Postgres.DSN = val
	}

	// auth.providers.*.client_secret_file -> auth.providers.*.client_secret
	providers := []struct {
		name string
		pc   *ProviderConfig
	}{
		{"aad", &cfg.Auth.Providers.AAD.ProviderConfig},
		{"google", &cfg.Auth.Providers.Google},
		{"facebook", &cfg.Auth.Providers.Facebook},
		{"twitter", &cfg.Auth.Providers.Twitter},
	}
	for _, p := range providers {
		if p.pc.ClientSecretFile != "" && p.pc.ClientSecret == "" {
			val, err := readSecretFile(p.pc.ClientSecretFile)
			if err != nil {
				return fmt.Errorf("auth.providers.%s.client_secret_file: %w", p.name, err)
			}
			p.pc.ClientSecret = val
		}
	}

	return nil
}

// readSecretFile reads a secret from a file, trimming surrounding whitespace.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
