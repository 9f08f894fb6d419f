// Package preflight provides readiness checks for the binaries and
// filesystem paths vmfleet depends on.
//
// These checks run in two contexts:
//   - The daemon logs a snapshot from RunAll when it starts, so a missing
//     cloud CLI shows up at the top of the log rather than as a failed probe
//     on every pass.
//   - The CLI "vmfleet status" command prints the same results under the
//     fleet table.
//
// Checks never fail the caller; they only report.
package preflight
