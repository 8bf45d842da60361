// Package main is the entry point for the folder store server.
//
// The server keeps named folders of files under a storage root and moves
// whole folders in and out as archives (zip, tar, tar.gz, tar.zst).
//
// Configuration:
//   - Environment variables (PORT, STORAGE_ROOT, LOG_LEVEL, ...)
//   - An optional YAML or TOML file via -config or CONFIG_FILE; the
//     environment still wins over the file
//   - CLI flags override both
//
// Usage:
//
//	# Production mode
//	./server -port 4000 -root /srv/uploads
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown, bounded by SHUTDOWN_TIMEOUT
package main
