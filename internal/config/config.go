// Package config loads orchestrator settings from environment variables.
//
// The package supports multiple database backends (in-memory, SQLite and
// PostgreSQL), optional Redis for distributed resource locks, JWT
// authentication for gate approvals, and the artifact store location.
//
// Configuration is loaded with Load() and must pass Validate() before use.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all orchestrator settings.
//
// Environment variables:
//   - PORT: HTTP listen port (default: 8080)
//   - LOG_LEVEL: debug, info, warn or error (default: info)
//   - WORKSPACE_DIR: base directory for step commands (default: ./workspace)
//   - ARTIFACT_DIR: root of the filesystem artifact store (default: ./artifacts)
//   - ARTIFACT_REPOSITORY: default repository for pipeline uploads (default: releases)
//   - DEFAULT_STAGE_TIMEOUT: timeout for stages that declare none (default: 30m)
//   - MAX_RUN_DURATION: upper bound on background pipeline runs (default: 4h)
//   - DEPLOY_JOB_PREFIX: prefix for downstream deploy job references (default: deploy-)
//   - PROD_APPROVERS: comma-separated identities allowed on production gates
//   - TRIGGER_BASE_URL: remote orchestrator for downstream builds; empty runs them in-process
//   - NOTIFY_WEBHOOK_URL: optional webhook receiving run completion events
//   - DATABASE_TYPE: memory, sqlite or postgres (default: sqlite)
//   - DATABASE_PATH: SQLite database file (default: ./conveyor.db)
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_DB, POSTGRES_USER,
//     POSTGRES_PASSWORD, POSTGRES_SSL_MODE: PostgreSQL connection settings
//   - REDIS_ADDRESS: Redis server for distributed locks; empty uses local locks
//   - REDIS_PASSWORD, REDIS_DB, REDIS_POOL_SIZE: Redis connection settings
//   - JWT_SECRET: token signing secret, minimum 32 characters (required)
//   - TOKEN_TTL: operator token lifetime (default: 24h)
type Config struct {
	// Application settings
	Port         string // HTTP listen port
	LogLevel     string // Logging level (debug, info, warn, error)
	WorkspaceDir string // Base directory for step commands

	// Pipeline settings
	ArtifactDir         string        // Root directory of the artifact store
	ArtifactRepository  string        // Default repository for pipeline uploads
	DefaultStageTimeout time.Duration // Timeout for leaf stages that declare none
	MaxRunDuration      time.Duration // Upper bound on background pipeline runs
	DeployJobPrefix     string        // Prefix for downstream deploy job references
	ProdApprovers       []string      // Identities allowed to approve production gates
	TriggerBaseURL      string        // Remote orchestrator URL; empty triggers in-process
	NotifyWebhookURL    string        // Webhook receiving run completion events

	// Database configuration
	DatabaseType     string // Database type: "memory", "sqlite" or "postgres"
	DatabasePath     string // Path to SQLite database file
	PostgresHost     string // PostgreSQL host address
	PostgresPort     string // PostgreSQL port number
	PostgresDB       string // PostgreSQL database name
	PostgresUser     string // PostgreSQL username
	PostgresPassword string // PostgreSQL password
	PostgresSSLMode  string // PostgreSQL SSL mode (disable, require, etc.)

	// Redis configuration for distributed resource locks
	RedisAddress  string // Redis server address (host:port); empty disables Redis
	RedisPassword string // Redis authentication password
	RedisDB       string // Redis database number (0-15)
	RedisPoolSize string // Redis connection pool size

	// JWT authentication configuration
	JWTSecret string        // Secret key for operator token signing (required)
	TokenTTL  time.Duration // Operator token lifetime
}

// Load creates a Config with values from environment variables, falling
// back to defaults where unset. Call Validate() before using the result.
func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "8080"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		WorkspaceDir: getEnv("WORKSPACE_DIR", "./workspace"),

		ArtifactDir:         getEnv("ARTIFACT_DIR", "./artifacts"),
		ArtifactRepository:  getEnv("ARTIFACT_REPOSITORY", "releases"),
		DefaultStageTimeout: getDurationEnv("DEFAULT_STAGE_TIMEOUT", 30*time.Minute),
		MaxRunDuration:      getDurationEnv("MAX_RUN_DURATION", 4*time.Hour),
		DeployJobPrefix:     getEnv("DEPLOY_JOB_PREFIX", "deploy-"),
		ProdApprovers:       getListEnv("PROD_APPROVERS"),
		TriggerBaseURL:      getEnv("TRIGGER_BASE_URL", ""),
		NotifyWebhookURL:    getEnv("NOTIFY_WEBHOOK_URL", ""),

		DatabaseType:     getEnv("DATABASE_TYPE", "sqlite"),
		DatabasePath:     getEnv("DATABASE_PATH", "./conveyor.db"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDB:       getEnv("POSTGRES_DB", "conveyor"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresSSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),

		RedisAddress:  getEnv("REDIS_ADDRESS", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnv("REDIS_DB", "0"),
		RedisPoolSize: getEnv("REDIS_POOL_SIZE", "10"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		TokenTTL:  getDurationEnv("TOKEN_TTL", 24*time.Hour),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var values []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

// Validate checks required fields, value formats and cross-field
// dependencies. Call it after Load() and before wiring components.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters long")
	}

	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a number between 1 and 65535, got %q", c.Port)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", c.LogLevel)
	}

	switch c.DatabaseType {
	case "memory":
	case "sqlite":
		if c.DatabasePath == "" {
			return fmt.Errorf("DATABASE_PATH is required for the sqlite backend")
		}
	case "postgres":
		if c.PostgresHost == "" || c.PostgresDB == "" || c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_HOST, POSTGRES_DB and POSTGRES_USER are required for the postgres backend")
		}
		if port, err := strconv.Atoi(c.PostgresPort); err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("POSTGRES_PORT must be a number between 1 and 65535, got %q", c.PostgresPort)
		}
	default:
		return fmt.Errorf("DATABASE_TYPE must be memory, sqlite or postgres, got %q", c.DatabaseType)
	}

	if c.RedisAddress != "" {
		if db, err := strconv.Atoi(c.RedisDB); err != nil || db < 0 || db > 15 {
			return fmt.Errorf("REDIS_DB must be a number between 0 and 15, got %q", c.RedisDB)
		}
		if size, err := strconv.Atoi(c.RedisPoolSize); err != nil || size < 1 {
			return fmt.Errorf("REDIS_POOL_SIZE must be a positive number, got %q", c.RedisPoolSize)
		}
	}

	if c.DefaultStageTimeout < 0 {
		return fmt.Errorf("DEFAULT_STAGE_TIMEOUT must not be negative")
	}
	if c.MaxRunDuration <= 0 {
		return fmt.Errorf("MAX_RUN_DURATION must be positive")
	}

	return nil
}

// RedisDBNumber returns the parsed Redis database number.
func (c *Config) RedisDBNumber() int {
	db, _ := strconv.Atoi(c.RedisDB)
	return db
}

// RedisPoolSizeNumber returns the parsed Redis pool size.
func (c *Config) RedisPoolSizeNumber() int {
	size, _ := strconv.Atoi(c.RedisPoolSize)
	return size
}
