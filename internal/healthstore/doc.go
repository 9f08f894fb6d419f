// Package healthstore persists per-VM probe observations and the remediation
// journal in SQLite.
//
// The probe owns the consecutive SSH failure counter; keeping it here lets the
// count survive daemon restarts and lets `vmfleet status` show the last known
// state of every VM without talking to the daemon. The daemon is the only
// writer; CLI commands open the same file read-mostly through WAL.
package healthstore
