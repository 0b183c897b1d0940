package storage

import (
	"fmt"

	"conveyor/internal/common/errors"
	"conveyor/internal/config"
)

// NewStorage creates a storage adapter based on configuration.
func NewStorage(cfg *config.Config) (Storage, error) {
	var storageConfig StorageConfig

	switch cfg.DatabaseType {
	case "memory":
		storageConfig = GenericConfig{}

	case "sqlite":
		storageConfig = GenericConfig{
			"path": cfg.DatabasePath,
		}

	case "postgres":
		storageConfig = GenericConfig{
			"host":     cfg.PostgresHost,
			"port":     cfg.PostgresPort,
			"database": cfg.PostgresDB,
			"username": cfg.PostgresUser,
			"password": cfg.PostgresPassword,
			"sslmode":  cfg.PostgresSSLMode,
		}

	default:
		return nil, errors.ConfigError(fmt.Sprintf("unsupported database type: %s", cfg.DatabaseType))
	}

	return Create(cfg.DatabaseType, storageConfig)
}

// GenericConfig carries adapter settings as loose key-value pairs. Each
// factory converts it to its typed config and validates there.
type GenericConfig map[string]interface{}

func (c GenericConfig) GetType() string { return "generic" }
func (c GenericConfig) Validate() error { return nil }

// String reads a string value from the config, with a default.
func (c GenericConfig) String(key, fallback string) string {
	if v, ok := c[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// Int reads an integer value from the config, with a default.
func (c GenericConfig) Int(key string, fallback int) int {
	switch v := c[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return fallback
	}
}
