package config

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/trygate-dev/trygate/pkg/secret"
)

// knownProviders are the provider names the gateway can register.
var knownProviders = map[string]bool{
	"aad":      true,
	"google":   true,
	"facebook": true,
	"twitter":  true,
	"local":    true,
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.Analytics.Type {
	case "memory":
		if c.Analytics.MaxSize <= 0 {
			return fmt.Errorf("analytics.max_size must be positive, got %d", c.Analytics.MaxSize)
		}
	case "postgres":
		if c.Analytics.Postgres.DSN == "" {
			return fmt.Errorf("analytics.postgres.dsn is required when analytics.type is postgres")
		}
	default:
		return fmt.Errorf("analytics.type must be 'memory' or 'postgres', got %q", c.Analytics.Type)
	}

	if c.Auth.Enabled {
		if c.Auth.EncryptionKey == "" {
			return fmt.Errorf("auth.encryption_key is required when auth is enabled")
		}
		if _, err := DecodeKey(c.Auth.EncryptionKey); err != nil {
			return fmt.Errorf("auth.encryption_key: %w", err)
		}
		if c.Auth.SessionTTL <= 0 {
			return fmt.Errorf("auth.session_ttl must be positive, got %s", c.Auth.SessionTTL)
		}
		if !knownProviders[strings.ToLower(c.Auth.DefaultProvider)] {
			return fmt.Errorf("auth.default_provider %q is not a known provider", c.Auth.DefaultProvider)
		}
		if c.Auth.BearerRPM < 0 {
			return fmt.Errorf("auth.bearer_rpm must not be negative, got %d", c.Auth.BearerRPM)
		}
	}

	if c.Observability.Metrics.Enabled && c.Observability.Metrics.Path == "" {
		return fmt.Errorf("observability.metrics.path is required when metrics are enabled")
	}

	return nil
}

// DecodeKey decodes an encryption key given as hex or standard base64 and
// checks it is exactly 32 raw bytes.
func DecodeKey(encoded string) ([]byte, error) {
	var key []byte
	if b, err := hex.DecodeString(encoded); err == nil {
		key = b
	} else if b, err := base64.StdEncoding.DecodeString(encoded); err == nil {
		key = b
	} else {
		return nil, fmt.Errorf("key must be hex or base64 encoded")
	}
	if len(key) != secret.KeySize {
		return nil, fmt.Errorf("key must decode to %d bytes, got %d", secret.KeySize, len(key))
	}
	return key, nil
}
