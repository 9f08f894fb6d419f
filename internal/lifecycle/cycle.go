package lifecycle

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"vmfleet/internal/logging"
)

// VMReport describes what one pass did for one VM.
type VMReport struct {
	VMName    string
	Config    MonitoringConfig
	Probed    bool
	Status    HealthStatus
	Escalated bool
	Heal      *HealResult
	Err       error
}

// CycleReport is the outcome of one pass over the fleet.
type CycleReport struct {
	VMs          []VMReport
	NextInterval time.Duration
}

// RunCycle performs one monitoring pass. It never fails: collaborator errors
// are logged and recorded on the affected VMReport.
func (d *Daemon) RunCycle(ctx context.Context) CycleReport {
	return d.cycle(ctx, func() bool { return ctx.Err() == nil })
}

func (d *Daemon) cycle(ctx context.Context, keepGoing func() bool) CycleReport {
	d.cycleMu.Lock()
	defer d.cycleMu.Unlock()

	report := CycleReport{NextInterval: d.defaultInterval}

	var vms []string
	err := d.guard("", "list_vms", func() error {
		var err error
		vms, err = d.source.ListMonitoredVMs()
		return err
	})
	if err != nil {
		return report
	}
	d.pruneFailures(vms)

	var shortest time.Duration
	for _, vm := range vms {
		if !keepGoing() {
			break
		}
		vmReport := d.evaluate(ctx, vm)
		report.VMs = append(report.VMs, vmReport)
		if vmReport.Err == nil && vmReport.Config.Enabled {
			if interval := vmReport.Config.CheckInterval(); shortest == 0 || interval < shortest {
				shortest = interval
			}
		}
	}
	if shortest > 0 {
		report.NextInterval = shortest
	}
	return report
}

// pruneFailures forgets streaks of VMs no longer configured, so a VM that is
// removed and later re-added escalates afresh.
func (d *Daemon) pruneFailures(vms []string) {
	if len(d.lastFailures) == 0 {
		return
	}
	keep := make(map[string]struct{}, len(vms))
	for _, vm := range vms {
		keep[vm] = struct{}{}
	}
	for vm := range d.lastFailures {
		if _, ok := keep[vm]; !ok {
			delete(d.lastFailures, vm)
		}
	}
}

func (d *Daemon) evaluate(ctx context.Context, vm string) VMReport {
	report := VMReport{VMName: vm}
	logger := d.logger.With(logging.VM(vm))

	var cfg MonitoringConfig
	report.Err = d.guard(vm, "config", func() error {
		var err error
		cfg, err = d.source.MonitoringConfig(vm)
		if err != nil {
			return err
		}
		return cfg.Validate()
	})
	if report.Err != nil {
		return report
	}
	report.Config = cfg
	if !cfg.Enabled {
		logger.Debug("monitoring disabled; skipping")
		return report
	}

	// In-flight calls are never cut short by shutdown.
	callCtx := context.WithoutCancel(ctx)

	var status HealthStatus
	report.Err = d.guard(vm, "probe", func() error {
		var err error
		status, err = d.probe.Check(callCtx, vm)
		return err
	})
	if report.Err != nil {
		return report
	}
	if status.VMName == "" {
		status.VMName = vm
	}
	report.Probed = true
	report.Status = status

	if status.Healthy() {
		// A recovery ends the failure streak; the next outage escalates afresh.
		delete(d.lastFailures, vm)
		logger.Debug("vm healthy", logging.String("state", string(status.State)))
		d.fireHook(callCtx, vm, cfg, HookOnHealthy, map[string]string{
			"state": string(status.State),
		})
		return report
	}

	previous, seen := d.lastFailures[vm]
	d.lastFailures[vm] = status.SSHFailures
	if status.SSHFailures != cfg.SSHFailureThreshold || (seen && previous == status.SSHFailures) {
		logger.Debug("vm unreachable",
			logging.String("state", string(status.State)),
			logging.Int("ssh_failures", status.SSHFailures),
			logging.Int("threshold", cfg.SSHFailureThreshold),
		)
		return report
	}

	record := FailureRecord{
		VMName:       vm,
		FailureCount: status.SSHFailures,
		State:        status.State,
		DetectedAt:   d.now(),
		IncidentID:   uuid.NewString(),
	}
	report.Escalated = true
	logging.WarnWithContext(logger, "ssh failure threshold reached", "vm_failure_threshold",
		logging.String("state", string(status.State)),
		logging.Int("ssh_failures", status.SSHFailures),
		logging.Int("threshold", cfg.SSHFailureThreshold),
		logging.String(logging.FieldIncidentID, record.IncidentID),
		logging.String(logging.FieldErrorHint, "check the VM console and network security rules"),
		logging.String(logging.FieldImpact, "vm unreachable over ssh; remediation follows restart policy"),
	)

	d.fireHook(callCtx, vm, cfg, HookOnFailure, map[string]string{
		"state":        string(status.State),
		"ssh_failures": strconv.Itoa(status.SSHFailures),
		"threshold":    strconv.Itoa(cfg.SSHFailureThreshold),
		"incident_id":  record.IncidentID,
	})

	var result HealResult
	if err := d.guard(vm, "heal", func() error {
		var err error
		result, err = d.healer.HandleFailure(callCtx, record)
		return err
	}); err != nil {
		return report
	}
	report.Heal = &result
	logger.Info("remediation finished",
		logging.String("action", string(result.Action)),
		logging.Bool("success", result.Success),
		logging.String("message", result.Message),
		logging.String(logging.FieldIncidentID, record.IncidentID),
	)
	return report
}

// fireHook runs a configured hook in a detached goroutine.
func (d *Daemon) fireHook(ctx context.Context, vm string, cfg MonitoringConfig, name string, hookCtx map[string]string) {
	command, ok := cfg.Hook(name)
	if !ok {
		return
	}
	inv := HookInvocation{Name: name, VMName: vm, Command: command, Context: hookCtx}
	go func() {
		_ = d.guard(vm, "hook_"+name, func() error {
			return d.hooks.Run(ctx, inv)
		})
	}()
}

// guard runs fn, converting panics to errors and logging any failure. The
// loop never stops because a collaborator misbehaved.
func (d *Daemon) guard(vm, op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", op, r)
		}
		if err == nil {
			return
		}
		attrs := []logging.Attr{
			logging.String("operation", op),
			logging.Error(err),
			logging.String(logging.FieldImpact, "no information for this vm this pass"),
		}
		if vm != "" {
			attrs = append(attrs, logging.VM(vm))
		}
		logging.WarnWithContext(d.logger, "monitoring step failed", op+"_failed", attrs...)
	}()
	return fn()
}
