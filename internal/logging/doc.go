// Package logging provides structured logging for the wemokit toolkit.
//
// This package wraps zap logger with convenience functions for common logging
// patterns used throughout the toolkit. It provides both general logging
// functions and specialized functions for discovery, control, and eventing.
//
// # Log Levels
//
// The package supports standard log levels:
//   - Debug: Detailed debugging info (SSDP replies, NOTIFY bodies, SOAP actions)
//   - Info: Normal operations (subscriptions created/renewed, listener startup)
//   - Warn: Non-fatal issues (skipped devices, renewal retries)
//   - Error: Fatal issues (listener bind failures, critical errors)
//
// # Structured Logging
//
// All log functions use structured fields for queryability:
//
//	logging.Info("Subscription event",
//	    zap.String("event", "renewed"),
//	    zap.String("sid", "uuid:7206f5ac"),
//	    zap.String("udn", "uuid:Socket-1_0-221448K0101769"),
//	)
//
// # Configuration
//
// Logging is silent by default so CLI output stays clean. Set the
// WEMO_LOG_LEVEL environment variable (or call Initialize with an explicit
// level) to enable it:
//
//	if err := logging.InitializeFromEnv(); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. The underlying zap logger
// handles synchronization automatically.
package logging
