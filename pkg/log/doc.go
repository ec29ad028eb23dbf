/*
Package log provides structured logging for membridge using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and
support filtering by severity level for production debugging.

# Usage

Initializing the logger:

	import "github.com/maxfraieho/membridge/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Simple logging:

	log.Info("sync engine started")
	log.Warn("remote manifest reports more observations than local copy")
	log.Error("integrity check failed")

Component loggers:

	syncLog := log.WithComponent("sync")
	syncLog.Info().Str("project", "acme").Msg("push started")

	leaseLog := log.WithProject("acme", "a1b2c3d4e5f60718").
		With().Str("node_id", "node-1").Logger()
	leaseLog.Info().Int("epoch", 3).Msg("lease renewed")

# Integration points

This package is used by every core component:

  - pkg/sync: logs each push/pull phase and its outcome
  - pkg/lock: logs acquire/refuse/steal decisions
  - pkg/leadership: logs role determination and lease writes
  - pkg/objectstore: logs transport errors (not payloads)
  - pkg/heartbeat: logs backoff state transitions
  - pkg/controlplane: logs HTTP dispatch failures and job outcomes

# Log output examples

JSON format (production):

	{"level":"info","component":"sync","project":"acme","time":"2026-07-30T10:30:00Z","message":"push: uploaded"}
	{"level":"warn","component":"lock","time":"2026-07-30T10:30:01Z","message":"stale lock takeover"}

Console format (development):

	10:30:00 INF push: uploaded component=sync project=acme
	10:30:01 WRN stale lock takeover component=lock
*/
package log
