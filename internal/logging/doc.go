// Package logging provides structured logging for proxiscan.
//
// This package wraps a global zap logger with convenience functions for the
// events the scan engines, the session store and the live feed emit.
//
// # Log Levels
//
//   - Debug: advertisement payload dumps, per-device connect traffic, feed frames
//   - Info: scan start/stop, persisted sessions, feed clients
//   - Warn: forced stops, channel failures, dropped feed clients
//   - Error: persistence failures, startup failures
//
// # Specialized Logging
//
//	logging.LogScanEvent("radio", "started", zap.String("run_id", id))
//	logging.LogDeviceEvent("radio", identity, "connect_requested")
//	logging.LogSessionEvent(session.ID, "saved", zap.Int("devices", n))
//
// # Configuration
//
// Logging is silent unless a level is given explicitly or through the
// PROXISCAN_LOG_LEVEL environment variable:
//
//	if err := logging.Initialize(cfg.LogLevel); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// Output goes to stderr in console format so that it never interleaves with
// scan tables written to stdout.
package logging
