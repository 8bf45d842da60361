/*
Package monitoring provides metrics collection for the folder store.

# Overview

This package implements Prometheus-based metrics on a per-instance registry,
tracking HTTP requests, store operations, folder transfers and the temporary
archive artifacts transfers leave on disk.

# Features

- HTTP request metrics (latency, throughput, size), labelled by route
- Store operation metrics (duration, status code)
- Transfer metrics by direction and archive format
- Active artifact gauge and cleanup failure counter
- Go runtime and process collectors

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))

	timer := monitoring.NewTimer(metrics, "create_folder")
	// ... perform operation ...
	timer.Stop("ok")

# Metrics Endpoint

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
