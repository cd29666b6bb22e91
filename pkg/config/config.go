package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/shelf/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server Server
	Paths  Paths
	DB     DB
	Blob   Blob
	Cache  Cache

	LogLevel observability.LogLevel
}

// Server holds HTTP server configuration
type Server struct {
	Host            string
	Port            string
	TLSCertFile     string
	TLSKeyFile      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
}

// Paths holds the local filesystem layout
type Paths struct {
	// UploadDir retains staged plugin archives, keyed by staging code.
	UploadDir string
	// ScratchRoot hosts the per-submission extraction directories.
	ScratchRoot string
	// LogoDir is the public static-asset directory for plugin logos.
	LogoDir string
}

// DB holds relational store configuration
type DB struct {
	// Driver is "sqlite3" or "postgres".
	Driver string
	DSN    string
}

// Blob holds remote object-storage configuration
type Blob struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
	// KeyPrefix is the remote namespace for plugin archives.
	KeyPrefix string
}

// Cache holds optional Redis cache configuration; empty URL disables it
type Cache struct {
	RedisURL string
	TTL      time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: Server{
			Host:            getEnv("SHELF_HOST", "0.0.0.0"),
			Port:            getEnv("SHELF_PORT", "8020"),
			TLSCertFile:     getEnv("SHELF_TLS_CERT_FILE", ""),
			TLSKeyFile:      getEnv("SHELF_TLS_KEY_FILE", ""),
			ReadTimeout:     getEnvDuration("SHELF_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SHELF_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("SHELF_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SHELF_SHUTDOWN_TIMEOUT", 15*time.Second),
			MaxUploadBytes:  getEnvInt64("SHELF_MAX_UPLOAD_BYTES", 64<<20),
		},
		Paths: Paths{
			UploadDir:   getEnv("SHELF_UPLOAD_DIR", "uploads/plugins"),
			ScratchRoot: getEnv("SHELF_SCRATCH_ROOT", "uploads/dest"),
			LogoDir:     getEnv("SHELF_LOGO_DIR", "uploads/logos"),
		},
		DB: DB{
			Driver: getEnv("SHELF_DB_DRIVER", "sqlite3"),
			DSN:    getEnv("SHELF_DB_DSN", "file:shelf.db?_foreign_keys=on"),
		},
		Blob: Blob{
			Endpoint:     getEnv("SHELF_S3_ENDPOINT", ""),
			Region:       getEnv("SHELF_S3_REGION", "us-east-1"),
			Bucket:       getEnv("SHELF_S3_BUCKET", ""),
			AccessKey:    getEnv("SHELF_S3_ACCESS_KEY", ""),
			SecretKey:    getEnv("SHELF_S3_SECRET_KEY", ""),
			UsePathStyle: getEnvBool("SHELF_S3_USE_PATH_STYLE", false),
			KeyPrefix:    getEnv("SHELF_S3_KEY_PREFIX", "plugins/custom"),
		},
		Cache: Cache{
			RedisURL: getEnv("SHELF_REDIS_URL", ""),
			TTL:      getEnvDuration("SHELF_CACHE_TTL", 5*time.Minute),
		},
		LogLevel: parseLogLevel(getEnv("SHELF_LOG_LEVEL", "info")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		return fmt.Errorf("TLS cert and key files must be set together")
	}

	switch c.DB.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("invalid db driver: %s (must be sqlite3 or postgres)", c.DB.Driver)
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db DSN is required")
	}

	if c.Paths.UploadDir == "" || c.Paths.ScratchRoot == "" || c.Paths.LogoDir == "" {
		return fmt.Errorf("upload, scratch, and logo directories are required")
	}

	if c.Blob.Bucket == "" {
		return fmt.Errorf("blob bucket is required")
	}
	if c.Blob.KeyPrefix == "" {
		return fmt.Errorf("blob key prefix is required")
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

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
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
