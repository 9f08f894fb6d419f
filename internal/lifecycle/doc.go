// Package lifecycle implements the long-running VM health-monitoring daemon.
//
// A Daemon walks the monitored VM list once per pass, re-reading each VM's
// MonitoringConfig from the ConfigSource, asking the HealthProbe for a fresh
// HealthStatus, and deciding whether to fire hooks or hand a FailureRecord to
// the Healer. Every collaborator call runs inside a fail-open guard: errors and
// panics are logged with the VM name and the pass moves on to the next VM.
//
// The daemon owns the PID file for its process. It writes the file atomically
// at startup while holding an exclusive flock, and removes it on the way out.
// Supervisors (see internal/daemonctl) treat that file as the only shared
// state; nothing in this package is reachable from another process.
package lifecycle
