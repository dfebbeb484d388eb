// Package logging provides structured logging utilities for specrun.
//
// # Overview
//
// This package wraps the standard library slog package with specrun defaults
// so every command, stage and request logs in the same shape. It supports
// environment-based log level configuration, module/version context injection,
// and automatic source location tracking for debug logs.
//
// # Log Levels
//
// Supported log levels (case-insensitive):
//   - DEBUG: Detailed diagnostic information with source location
//   - INFO: General informational messages (default)
//   - WARN/WARNING: Warning messages for potentially problematic situations
//   - ERROR: Error messages for failures requiring attention
//
// # Usage
//
//	func main() {
//	    logging.SetDefaultStructuredLogger("specrun", "v1.0.0")
//	    slog.Info("resolving recipe", "file", "foo.spec")
//	}
//
// Setting explicit log level:
//
//	logging.SetDefaultStructuredLoggerWithLevel("specrun", "v1.0.0", "warn")
//
// # Environment Configuration
//
// The LOG_LEVEL environment variable controls logging verbosity when no
// explicit level is given:
//
//	LOG_LEVEL=debug specrun build foo.spec
//
// # Output Format
//
// All logs are written to stderr in JSON format:
//
//	{
//	    "time": "2025-01-15T10:30:00.123Z",
//	    "level": "INFO",
//	    "msg": "stage completed",
//	    "module": "specrun",
//	    "version": "v1.0.0",
//	    "stage": "build"
//	}
//
// Stage scripts write their own stdout/stderr through the runner; only
// specrun's own diagnostics go through this logger.
package logging
