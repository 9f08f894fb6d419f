package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"vmfleet/internal/config"
	"vmfleet/internal/daemonctl"
	"vmfleet/internal/healthstore"
	"vmfleet/internal/lifecycle"
	"vmfleet/internal/preflight"
)

type checkEntry struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Optional bool   `json:"optional,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

type fleetEntry struct {
	Name            string     `json:"name"`
	Enabled         bool       `json:"enabled"`
	Host            string     `json:"host,omitempty"`
	RestartPolicy   string     `json:"restart_policy"`
	Threshold       int        `json:"ssh_failure_threshold"`
	IntervalSeconds int        `json:"check_interval_seconds"`
	State           string     `json:"state,omitempty"`
	SSHReachable    *bool      `json:"ssh_reachable,omitempty"`
	SSHFailures     int        `json:"ssh_failures"`
	LastCheck       *time.Time `json:"last_check,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
}

type statusSnapshot struct {
	Daemon        lifecycle.DaemonStatus `json:"daemon"`
	ConfigPath    string                 `json:"config_path"`
	ConfigFound   bool                   `json:"config_found"`
	Checks        []checkEntry           `json:"checks"`
	Fleet         []fleetEntry           `json:"fleet"`
	HealthDBError string                 `json:"health_db_error,omitempty"`
}

func buildStatusSnapshot(ctx context.Context, cc *commandContext, ctl *daemonctl.Controller) statusSnapshot {
	cfg := cc.configValue()
	snap := statusSnapshot{
		Daemon:      ctl.Status(),
		ConfigPath:  cc.configPath,
		ConfigFound: cc.configExists,
		Checks:      []checkEntry{},
		Fleet:       []fleetEntry{},
	}
	if source, err := cc.configSource(); err == nil {
		if current, err := source.Current(); err == nil {
			cfg = current
		}
	}

	for _, r := range preflight.RunAll(cfg) {
		snap.Checks = append(snap.Checks, checkEntry{Name: r.Name, Passed: r.Passed, Optional: r.Optional, Detail: r.Detail})
	}

	records, err := loadHealthRecords(ctx, cfg.Daemon.StateDB)
	if err != nil {
		snap.HealthDBError = err.Error()
	}
	snap.Fleet = buildFleet(cfg, records)
	return snap
}

// loadHealthRecords reads persisted probe results. A database that does not
// exist yet yields no records rather than being created.
func loadHealthRecords(ctx context.Context, path string) (map[string]healthstore.Record, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, nil
	}
	store, err := healthstore.Open(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	list, err := store.List(queryCtx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]healthstore.Record, len(list))
	for _, rec := range list {
		out[rec.VMName] = rec
	}
	return out, nil
}

func buildFleet(cfg *config.Config, records map[string]healthstore.Record) []fleetEntry {
	fleet := make([]fleetEntry, 0, len(cfg.VMs))
	for _, name := range cfg.VMNames() {
		vm := cfg.VMs[name]
		entry := fleetEntry{
			Name:            name,
			Enabled:         vm.IsEnabled(),
			Host:            vm.Host,
			RestartPolicy:   vm.RestartPolicy,
			Threshold:       vm.SSHFailureThreshold,
			IntervalSeconds: vm.CheckIntervalSeconds,
		}
		if rec, ok := records[name]; ok {
			reachable := rec.SSHReachable
			checked := rec.LastCheck
			entry.State = string(rec.State)
			entry.SSHReachable = &reachable
			entry.SSHFailures = rec.SSHFailures
			entry.LastCheck = &checked
			entry.LastError = rec.LastError
		}
		fleet = append(fleet, entry)
	}
	return fleet
}

func renderStatus(out io.Writer, snap statusSnapshot) {
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, line := range daemonLines(snap, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Dependencies", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, line := range checkLines(snap.Checks, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Fleet", colorize) {
		fmt.Fprintln(out, line)
	}
	if snap.HealthDBError != "" {
		fmt.Fprintln(out, renderStatusLine("Health DB", statusWarn, snap.HealthDBError, colorize))
	}
	if len(snap.Fleet) == 0 {
		fmt.Fprintln(out, "No VMs configured")
		return
	}
	fmt.Fprintln(out, renderTable(fleetColumns, fleetRows(snap.Fleet)))
}

func daemonLines(snap statusSnapshot, colorize bool) []string {
	var lines []string
	d := snap.Daemon
	if d.Running {
		detail := fmt.Sprintf("Running (pid %d, up %s)", d.PID, formatUptime(d.Uptime))
		lines = append(lines, renderStatusLine("vmfleet", statusOK, detail, colorize))
		vms := "none"
		if len(d.MonitoredVMs) > 0 {
			vms = strings.Join(d.MonitoredVMs, ", ")
		}
		lines = append(lines, renderStatusLine("Monitored VMs", statusInfo, vms, colorize))
	} else {
		lines = append(lines, renderStatusLine("vmfleet", statusWarn, "Not running (run `vmfleet start`)", colorize))
	}

	configDetail := snap.ConfigPath
	if !snap.ConfigFound {
		configDetail += " (not found; defaults in use)"
	}
	lines = append(lines, renderStatusLine("Config", statusInfo, configDetail, colorize))
	return lines
}

func checkLines(checks []checkEntry, colorize bool) []string {
	lines := make([]string, 0, len(checks))
	for _, c := range checks {
		kind := statusOK
		switch {
		case c.Passed:
		case c.Optional:
			kind = statusWarn
		default:
			kind = statusError
		}
		lines = append(lines, renderStatusLine(c.Name, kind, c.Detail, colorize))
	}
	return lines
}

var fleetColumns = []tableColumn{
	col("VM"), col("Enabled"), col("Policy"), rightCol("Threshold"), rightCol("Interval"),
	col("State"), col("SSH"), rightCol("Failures"), col("Last Check"),
}

func fleetRows(fleet []fleetEntry) [][]string {
	rows := make([][]string, 0, len(fleet))
	for _, vm := range fleet {
		state, ssh, checked := "-", "-", "never"
		if vm.State != "" {
			state = stateLabel(vm.State)
		}
		if vm.SSHReachable != nil {
			ssh = "down"
			if *vm.SSHReachable {
				ssh = "up"
			}
		}
		if vm.LastCheck != nil && !vm.LastCheck.IsZero() {
			checked = vm.LastCheck.Local().Format(time.DateTime)
		}
		rows = append(rows, []string{
			vm.Name,
			yesNo(vm.Enabled),
			vm.RestartPolicy,
			strconv.Itoa(vm.Threshold),
			(time.Duration(vm.IntervalSeconds) * time.Second).String(),
			state,
			ssh,
			strconv.Itoa(vm.SSHFailures),
			checked,
		})
	}
	return rows
}

func formatUptime(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}
	return d.Round(time.Second).String()
}
