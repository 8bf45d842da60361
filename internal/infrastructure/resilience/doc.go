/*
Package resilience provides a circuit breaker for graceful degradation.

# Overview

The folder store guards its write paths with a breaker that only counts
disk-full errors. Once the disk keeps reporting ENOSPC, uploads are refused
immediately instead of each one filling the scratch directory before
failing.

# Usage

	guard := resilience.New("storage-writes", resilience.Settings{
		Threshold: 3,
		Cooldown:  30 * time.Second,
		IsFailure: filesystem.IsDiskFull,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("breaker state changed", zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	err := guard.Do(func() error {
		return store.Files.SaveUploadedFile(ctx, folder, name, r)
	})

# States

	Closed --[Threshold failures]-> Open --[Cooldown]-> Half-Open --[probe ok]-> Closed
	                                                        |
	                                                  [probe fails]
	                                                        v
	                                                       Open
*/
package resilience
