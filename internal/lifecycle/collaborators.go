package lifecycle

import "context"

// ConfigSource lists monitored VMs and supplies their current configuration.
// Implementations are expected to reflect on-disk edits without a restart.
type ConfigSource interface {
	ListMonitoredVMs() ([]string, error)
	MonitoringConfig(vmName string) (MonitoringConfig, error)
}

// HealthProbe determines a VM's current power state and SSH reachability.
type HealthProbe interface {
	Check(ctx context.Context, vmName string) (HealthStatus, error)
}

// Healer performs remediation for a VM whose failures reached the threshold.
type Healer interface {
	HandleFailure(ctx context.Context, record FailureRecord) (HealResult, error)
}

// HookRunner executes a user-configured hook command. The daemon calls it from
// a detached goroutine and never waits for the result.
type HookRunner interface {
	Run(ctx context.Context, inv HookInvocation) error
}

type noopHealer struct{}

func (noopHealer) HandleFailure(context.Context, FailureRecord) (HealResult, error) {
	return HealResult{Action: HealNone, Success: true, Message: "healing disabled"}, nil
}

type noopHookRunner struct{}

func (noopHookRunner) Run(context.Context, HookInvocation) error { return nil }
