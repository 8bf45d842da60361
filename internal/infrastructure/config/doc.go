// Package config provides 12-factor configuration management for the file store.
//
// Configuration is loaded from environment variables with sensible defaults.
// An optional YAML or TOML file (CONFIG_FILE) can supply a base layer; any
// environment variable that is set still wins over the file.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host, shutdown timeout)
//   - Storage: storage root, scratch directory, transfer limits, archive format
//   - Logging: Log level and output format
//   - RateLimit: per-IP or global rate limiting configuration
//
// Example Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("Serving %s on %s:%s\n", cfg.Storage.Root, cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - PORT, HOST, SHUTDOWN_TIMEOUT, CORS_ORIGINS
//   - STORAGE_ROOT, STORAGE_SCRATCH_DIR, STORAGE_MAX_UPLOAD_BYTES,
//     STORAGE_MAX_EXTRACT_BYTES, STORAGE_ARCHIVE_FORMAT, STORAGE_COMPRESSION_LEVEL
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED, RATE_LIMIT_GLOBAL
package config
