/*
Package tracing provides lightweight request tracing for debugging production
issues.

# Overview

Each HTTP request gets a span; long-running store operations such as folder
transfers open child spans beneath it. Finished spans are written to the zap
logger by a single collector goroutine. IDs are ULIDs from the shared id
package.

# Features

- Trace context propagation via the X-Trace-ID and X-Span-ID headers
- Parent-child spans carried through context.Context
- Gin middleware for automatic request spans
- Buffered, non-blocking span submission (1000 spans)

# Usage

	tracer := tracing.New("folderstore", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	err := tracer.Trace(ctx, "transfer.download", func(ctx context.Context, span *tracing.Span) error {
		span.SetTag("folder", name)
		return doWork(ctx)
	})
*/
package tracing
