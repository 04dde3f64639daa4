/*
Package log provides structured logging for greenfleet using zerolog.

A single package-level zerolog.Logger is configured once by Init (console
output with RFC3339 timestamps, or JSON for log shippers) and every component
derives a child logger from it. Structured log lines are the only progress
surface of a deploy run: state transitions, capacity checks, member lifecycle
summaries, rollback actions and orphaned-resource warnings all go through
here.

# Usage

Initializing the Logger:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: false,
		Output:     os.Stderr,
	})

Component Loggers:

	fleetLog := log.WithComponent("fleet")
	fleetLog.Info().Str("fleet", name).Int("desired", 2).Msg("Waiting for members")

	runLog := log.WithTarget("prod", "web")
	runLog.Warn().Str("launch_spec", spec).Msg("Launch spec left orphaned")

Until Init is called Logger is a no-op logger, so packages can build their
component loggers in tests without configuring output.
*/
package log
