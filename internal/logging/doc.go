// Package logging assembles structured slog loggers and formatting helpers used
// by the vmfleet CLI and lifecycle daemon.
//
// It owns the console/JSON handlers, level and output plumbing (stdout plus the
// daemon log file), and the field-name conventions every component shares:
// component, vm, event_type, error_hint, impact. A fan-out handler and a
// session handler let the daemon stamp one run's log lines with a session id.
//
// Prefer these constructors over hand-rolled slog setup so every line the
// daemon writes can be grepped the same way by `vmfleet logs`.
package logging
