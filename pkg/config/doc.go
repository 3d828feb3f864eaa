// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings except the permission store URL.
//
// # Configuration Structure
//
// Server settings:
//
//	QUILLHUB_HOST="0.0.0.0"
//	QUILLHUB_PORT="8080"
//	QUILLHUB_HEALTH_PORT="9090"
//	QUILLHUB_READ_TIMEOUT="15s"
//	QUILLHUB_WRITE_TIMEOUT="15s"
//	QUILLHUB_SHUTDOWN_TIMEOUT="30s"
//
// Permission store settings:
//
//	QUILLHUB_POSTGRES_URL="postgres://localhost/quillhub"
//	QUILLHUB_POSTGRES_MAX_CONNS="20"
//
// Shared cache settings:
//
//	QUILLHUB_REDIS_URL="redis://localhost:6379"
//	QUILLHUB_REDIS_POOL_SIZE="10"
//
// Permission cache settings:
//
//	QUILLHUB_CACHE_L1_MAX_ENTRIES="10000"
//	QUILLHUB_CACHE_POSITIVE_TTL="5m"
//	QUILLHUB_CACHE_NEGATIVE_TTL="30s"
//	QUILLHUB_CACHE_DRIVE_TTL="2m"
//	QUILLHUB_CACHE_STORE_TIMEOUT="3s"
//	QUILLHUB_CACHE_SWEEP_INTERVAL="1m"
//
// Observability settings:
//
//	QUILLHUB_LOG_LEVEL="info"  # debug, info, warn, error
//	QUILLHUB_METRICS_ENABLED="true"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
package config
