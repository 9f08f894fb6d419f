package lifecycle

import (
	"fmt"
	"strings"
	"time"
)

// VMState is the power state reported by a health probe.
type VMState string

const (
	StateRunning VMState = "running"
	StateStopped VMState = "stopped"
	StateUnknown VMState = "unknown"
)

// RestartPolicy controls how the healer reacts to an escalated failure.
type RestartPolicy string

const (
	RestartNever     RestartPolicy = "never"
	RestartOnFailure RestartPolicy = "on-failure"
	RestartAlways    RestartPolicy = "always"
)

// ParseRestartPolicy normalizes a configured policy string.
func ParseRestartPolicy(value string) (RestartPolicy, error) {
	switch RestartPolicy(strings.ToLower(strings.TrimSpace(value))) {
	case RestartNever:
		return RestartNever, nil
	case RestartOnFailure, "on_failure", "onfailure":
		return RestartOnFailure, nil
	case RestartAlways:
		return RestartAlways, nil
	default:
		return "", fmt.Errorf("restart policy: unsupported value %q (want never, on-failure, or always)", value)
	}
}

// Hook names understood by the monitoring loop.
const (
	HookOnHealthy = "on_healthy"
	HookOnFailure = "on_failure"
)

// MonitoringConfig is the per-VM monitoring configuration. The daemon reads it
// fresh every pass and never mutates it.
type MonitoringConfig struct {
	Enabled              bool
	CheckIntervalSeconds int
	SSHFailureThreshold  int
	RestartPolicy        RestartPolicy
	Hooks                map[string]string
}

// Validate reports configuration values the loop cannot act on.
func (c MonitoringConfig) Validate() error {
	if c.CheckIntervalSeconds < 1 {
		return fmt.Errorf("check_interval_seconds must be at least 1, got %d", c.CheckIntervalSeconds)
	}
	if c.SSHFailureThreshold < 1 {
		return fmt.Errorf("ssh_failure_threshold must be at least 1, got %d", c.SSHFailureThreshold)
	}
	if _, err := ParseRestartPolicy(string(c.RestartPolicy)); err != nil {
		return err
	}
	return nil
}

// CheckInterval returns the configured interval as a duration.
func (c MonitoringConfig) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}

// Hook returns the trimmed command configured for name.
func (c MonitoringConfig) Hook(name string) (string, bool) {
	command := strings.TrimSpace(c.Hooks[name])
	return command, command != ""
}

// HealthStatus is one probe observation. SSHFailures is the probe's own
// consecutive-failure counter.
type HealthStatus struct {
	VMName       string
	State        VMState
	SSHReachable bool
	SSHFailures  int
	LastCheck    time.Time
}

// Healthy reports whether the VM answered over SSH.
func (s HealthStatus) Healthy() bool {
	return s.SSHReachable
}

// FailureRecord is handed to the healer once per escalation.
type FailureRecord struct {
	VMName       string
	FailureCount int
	State        VMState
	DetectedAt   time.Time
	IncidentID   string
}

// HealAction names the remediation a healer performed.
type HealAction string

const (
	HealNone    HealAction = "none"
	HealStart   HealAction = "start"
	HealRestart HealAction = "restart"
)

// HealResult describes the outcome of a remediation attempt.
type HealResult struct {
	Action  HealAction
	Success bool
	Message string
}

// HookInvocation is a single fire-and-forget hook execution request.
type HookInvocation struct {
	Name    string
	VMName  string
	Command string
	Context map[string]string
}

// DaemonStatus is a point-in-time view of the daemon. PID is 0 and Uptime is 0
// whenever Running is false.
type DaemonStatus struct {
	Running      bool          `json:"running"`
	PID          int           `json:"pid,omitempty"`
	StartedAt    time.Time     `json:"started_at,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	MonitoredVMs []string      `json:"monitored_vms"`
}
