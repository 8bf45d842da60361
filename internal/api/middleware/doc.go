// Package middleware provides the HTTP middleware of the folder store.
//
// Middleware stack includes:
//   - CORS: cross-origin access, exposing Content-Disposition for downloads
//   - RateLimit: per-IP token buckets, idle clients evicted after IdleTTL
//   - GlobalRateLimit: one bucket shared by every client
//   - RequestLogger: one zap line per request, with the trace ID when present
//   - Recovery: panics become a logged 500 with a JSON error body
//
// Example Usage:
//
//	router.Use(middleware.Recovery(logger))
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
