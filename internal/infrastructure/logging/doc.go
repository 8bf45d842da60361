// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Components get a named child logger so transfer, folder and HTTP logs can
// be filtered apart:
//
//	logger, err := logging.New(logging.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	transfers := logger.Component("transfer")
//	transfers.Info("archive streamed", zap.String("folder", "reports"))
package logging
