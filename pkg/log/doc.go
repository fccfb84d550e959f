/*
Package log provides structured logging for Agora using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, optional rotated
file output, and helper functions for common logging patterns. All logs
include timestamps and support filtering by severity level.

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all Agora packages
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination
  - File: rotated file output via lumberjack when set

Context Loggers:
  - WithComponent: Add component name to all logs
  - WithTenant: Add tenant_id context
  - WithJobID: Add job_id context
  - WithSagaID: Add saga_id context

# Usage

Initializing the Logger:

	import "github.com/cuemby/agora/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

	// Rotated file output
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		File:       "/var/log/agora/agora.log",
	})

Simple Logging:

	log.Info("server started")
	log.Warn("cache backend unreachable, falling through to store")
	log.Error("payment intent creation failed")

Structured Logging:

	log.Logger.Info().
		Str("tenant_id", tenantID).
		Int("items", len(items)).
		Msg("cart updated")

Component Loggers:

	resolverLog := log.WithComponent("tenant-resolver")
	resolverLog.Debug().Str("host", host).Msg("resolving tenant")

The log level can be changed at runtime with SetLevel; the config watcher
calls it when the configuration file changes on disk.

# Integration Points

This package integrates with:

  - pkg/api: request logging middleware
  - pkg/jobs: per-job loggers via WithJobID
  - pkg/tenant: resolution and impersonation audit trails
  - pkg/checkout: saga step logging via WithSagaID
  - pkg/manager: lifecycle logging

# Security

Never log secrets, payment credentials, or presigned URLs. Use typed fields
(.Str, .Int, .Err) rather than formatting user input into messages.

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
  - 12-Factor App Logs: https://12factor.net/logs
*/
package log
