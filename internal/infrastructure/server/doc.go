// Package server assembles the folder store: configuration, logging,
// metrics, tracing, the filesystem provider and the gin router with its
// middleware, behind one net/http server with graceful shutdown.
package server
