// Package healing is the default remediation collaborator. It applies a VM's
// restart policy through the cloud CLI and journals every attempt.
package healing

import (
	"context"
	"fmt"
	"log/slog"

	"vmfleet/internal/healthstore"
	"vmfleet/internal/lifecycle"
	"vmfleet/internal/logging"
)

// Cloud performs power operations on a VM.
type Cloud interface {
	PowerState(ctx context.Context, vm string) (lifecycle.VMState, error)
	Start(ctx context.Context, vm string) error
	Restart(ctx context.Context, vm string) error
}

// Policies supplies the current monitoring config, including the restart policy.
type Policies interface {
	MonitoringConfig(vm string) (lifecycle.MonitoringConfig, error)
}

// Journal records remediation attempts and owns the failure counter.
type Journal interface {
	AppendRemediation(ctx context.Context, r healthstore.Remediation) (int64, error)
	ResetFailures(ctx context.Context, vm string) error
}

// Healer implements lifecycle.Healer.
type Healer struct {
	cloud    Cloud
	policies Policies
	journal  Journal
	logger   *slog.Logger
}

// New constructs a healer.
func New(cloud Cloud, policies Policies, journal Journal, logger *slog.Logger) *Healer {
	return &Healer{
		cloud:    cloud,
		policies: policies,
		journal:  journal,
		logger:   logging.NewComponentLogger(logger, "healing"),
	}
}

// HandleFailure remediates one escalated failure. A failed cloud action is
// returned as an error alongside the journaled result.
func (h *Healer) HandleFailure(ctx context.Context, record lifecycle.FailureRecord) (lifecycle.HealResult, error) {
	cfg, err := h.policies.MonitoringConfig(record.VMName)
	if err != nil {
		return lifecycle.HealResult{}, fmt.Errorf("load restart policy for %s: %w", record.VMName, err)
	}

	state := record.State
	if state == "" || state == lifecycle.StateUnknown {
		if current, err := h.cloud.PowerState(ctx, record.VMName); err == nil {
			state = current
		}
	}

	result, actionErr := h.apply(ctx, record.VMName, cfg.RestartPolicy, state)
	if actionErr == nil && result.Action != lifecycle.HealNone {
		if err := h.journal.ResetFailures(ctx, record.VMName); err != nil {
			logging.WarnWithContext(h.logger, "failed to reset failure counter", "failure_counter_reset_failed",
				logging.VM(record.VMName),
				logging.Error(err),
				logging.String(logging.FieldImpact, "the next escalation may be delayed"),
			)
		}
	}

	if _, err := h.journal.AppendRemediation(ctx, healthstore.Remediation{
		VMName:       record.VMName,
		IncidentID:   record.IncidentID,
		Action:       result.Action,
		Success:      result.Success,
		Message:      result.Message,
		FailureCount: record.FailureCount,
	}); err != nil {
		logging.WarnWithContext(h.logger, "failed to journal remediation", "remediation_journal_failed",
			logging.VM(record.VMName),
			logging.Error(err),
			logging.String(logging.FieldImpact, "remediation history incomplete"),
		)
	}

	if actionErr != nil {
		return result, fmt.Errorf("%s %s: %w", result.Action, record.VMName, actionErr)
	}
	return result, nil
}

func (h *Healer) apply(ctx context.Context, vm string, policy lifecycle.RestartPolicy, state lifecycle.VMState) (lifecycle.HealResult, error) {
	switch policy {
	case lifecycle.RestartNever:
		return lifecycle.HealResult{Action: lifecycle.HealNone, Success: true, Message: "restart policy is never"}, nil
	case lifecycle.RestartOnFailure:
		if state == lifecycle.StateStopped {
			return lifecycle.HealResult{Action: lifecycle.HealNone, Success: true, Message: "vm is stopped; on-failure leaves stopped vms alone"}, nil
		}
		return h.run(ctx, vm, lifecycle.HealRestart, h.cloud.Restart)
	case lifecycle.RestartAlways:
		if state == lifecycle.StateStopped {
			return h.run(ctx, vm, lifecycle.HealStart, h.cloud.Start)
		}
		return h.run(ctx, vm, lifecycle.HealRestart, h.cloud.Restart)
	default:
		return lifecycle.HealResult{Action: lifecycle.HealNone}, fmt.Errorf("unsupported restart policy %q", policy)
	}
}

func (h *Healer) run(ctx context.Context, vm string, action lifecycle.HealAction, fn func(context.Context, string) error) (lifecycle.HealResult, error) {
	h.logger.Info("remediating vm", logging.VM(vm), logging.String("action", string(action)))
	if err := fn(ctx, vm); err != nil {
		return lifecycle.HealResult{Action: action, Success: false, Message: err.Error()}, err
	}
	return lifecycle.HealResult{Action: action, Success: true, Message: fmt.Sprintf("vm %s issued", action)}, nil
}
