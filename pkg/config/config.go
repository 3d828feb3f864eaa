package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/quillhub/quillhub/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database (permission store) configuration
	Database DatabaseConfig

	// Redis (shared cache tier + invalidation bus) configuration
	Redis RedisConfig

	// Permission cache configuration
	Cache CacheConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds permission store configuration
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// RedisConfig holds shared cache backend configuration
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
}

// CacheConfig holds permission cache tuning
type CacheConfig struct {
	// L1MaxEntries bounds the in-process tier.
	L1MaxEntries int

	// PositiveTTL applies to decisions backed by a store record.
	PositiveTTL time.Duration

	// NegativeTTL applies to "no record" results. Kept short so a page
	// created moments after a miss becomes visible quickly.
	NegativeTTL time.Duration

	// DriveTTL applies to derived drive-access booleans.
	DriveTTL time.Duration

	// StoreTimeout bounds authoritative store lookups. Expiry surfaces
	// as a fail-closed store-unavailable error.
	StoreTimeout time.Duration

	// RedisTimeout bounds shared-tier round-trips. Expiry degrades to a
	// cache miss.
	RedisTimeout time.Duration

	// SweepInterval controls the background sweep of expired L1 entries.
	SweepInterval time.Duration

	// InvalidationChannel is the pub/sub channel carrying invalidation
	// events between processes.
	InvalidationChannel string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Cache:         loadCacheConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("QUILLHUB_HOST", "0.0.0.0"),
		Port:            getEnv("QUILLHUB_PORT", "8080"),
		ReadTimeout:     getEnvDuration("QUILLHUB_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("QUILLHUB_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("QUILLHUB_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("QUILLHUB_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("QUILLHUB_HEALTH_PORT", "9090"),
	}
}

// loadDatabaseConfig loads permission store configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:          getEnv("QUILLHUB_POSTGRES_URL", ""),
		MaxOpenConns: getEnvInt("QUILLHUB_POSTGRES_MAX_CONNS", 20),
		MaxIdleConns: getEnvInt("QUILLHUB_POSTGRES_IDLE_CONNS", 5),
		ConnLifetime: getEnvDuration("QUILLHUB_POSTGRES_CONN_LIFETIME", 30*time.Minute),
	}
}

// loadRedisConfig loads shared cache backend configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:        getEnv("QUILLHUB_REDIS_URL", "redis://localhost:6379"),
		Password:   getEnv("QUILLHUB_REDIS_PASSWORD", ""),
		DB:         getEnvInt("QUILLHUB_REDIS_DB", 0),
		MaxRetries: getEnvInt("QUILLHUB_REDIS_MAX_RETRIES", 3),
		PoolSize:   getEnvInt("QUILLHUB_REDIS_POOL_SIZE", 10),
	}
}

// loadCacheConfig loads permission cache tuning from environment
func loadCacheConfig() CacheConfig {
	return CacheConfig{
		L1MaxEntries:        getEnvInt("QUILLHUB_CACHE_L1_MAX_ENTRIES", 10000),
		PositiveTTL:         getEnvDuration("QUILLHUB_CACHE_POSITIVE_TTL", 5*time.Minute),
		NegativeTTL:         getEnvDuration("QUILLHUB_CACHE_NEGATIVE_TTL", 30*time.Second),
		DriveTTL:            getEnvDuration("QUILLHUB_CACHE_DRIVE_TTL", 2*time.Minute),
		StoreTimeout:        getEnvDuration("QUILLHUB_CACHE_STORE_TIMEOUT", 3*time.Second),
		RedisTimeout:        getEnvDuration("QUILLHUB_CACHE_REDIS_TIMEOUT", 500*time.Millisecond),
		SweepInterval:       getEnvDuration("QUILLHUB_CACHE_SWEEP_INTERVAL", time.Minute),
		InvalidationChannel: getEnv("QUILLHUB_CACHE_INVALIDATION_CHANNEL", "perm:invalidations"),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       parseLogLevel(getEnv("QUILLHUB_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("QUILLHUB_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("redis URL is required")
	}

	if c.Cache.L1MaxEntries <= 0 {
		return fmt.Errorf("L1 cache capacity must be positive")
	}
	if c.Cache.PositiveTTL <= 0 || c.Cache.NegativeTTL <= 0 || c.Cache.DriveTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if c.Cache.NegativeTTL > c.Cache.PositiveTTL {
		return fmt.Errorf("negative TTL must not exceed positive TTL")
	}
	if c.Cache.StoreTimeout <= 0 {
		return fmt.Errorf("store timeout must be positive")
	}
	if c.Cache.RedisTimeout <= 0 {
		return fmt.Errorf("redis timeout must be positive")
	}
	if c.Cache.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}
	if c.Cache.InvalidationChannel == "" {
		return fmt.Errorf("invalidation channel is required")
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
