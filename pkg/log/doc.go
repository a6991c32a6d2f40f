/*
Package log provides structured logging for Mosquitto Manager using zerolog.

The log package wraps zerolog with a single global logger, a small
configuration struct and helpers that attach the context fields used across
the manager (component, listener, broker client). Every subsystem logs
through a component logger so that reconciler runs, session tracking and
stats collection can be filtered independently.

# Configuration

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Level names are matched case-insensitively against debug, info, warn,
error and fatal; anything else maps to info. JSONOutput selects zerolog's JSON encoder, otherwise a human readable
console writer with RFC3339 timestamps is used.

# Component Loggers

	reconLog := log.WithComponent("reconciler")
	reconLog.Info().Str("trigger", "apply").Msg("Reconciliation started")

	sessLog := log.WithClientID("dev-123")
	sessLog.Debug().Msg("Session connected")

Before Init is called the global Logger writes JSON to stdout, so packages
can log from tests without extra setup.

# Log Levels

  - Debug: per-line classification results, individual signal deliveries
  - Info: pipeline steps, broker restarts, subscription state
  - Warn: best-effort failures (one user's credential, one file's permissions)
  - Error: failures that abort an operation and are returned to the caller
*/
package log
