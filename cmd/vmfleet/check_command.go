package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"vmfleet/internal/daemonrun"
	"vmfleet/internal/healthstore"
	"vmfleet/internal/lifecycle"
	"vmfleet/internal/logging"
)

type checkResult struct {
	VM           string `json:"vm"`
	Enabled      bool   `json:"enabled"`
	Probed       bool   `json:"probed"`
	State        string `json:"state,omitempty"`
	SSHReachable bool   `json:"ssh_reachable"`
	SSHFailures  int    `json:"ssh_failures"`
	Escalated    bool   `json:"escalated"`
	Action       string `json:"action,omitempty"`
	Detail       string `json:"detail,omitempty"`
}

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var heal bool
	var asJSON bool
	var verbose bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run one monitoring pass in the foreground",
		Long: "Probe every configured VM once and print the result. Failure counters are " +
			"shared with the daemon, so check refuses to run while the daemon is running.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			ctl, err := ctx.controller(daemonrun.Options{})
			if err != nil {
				return err
			}
			if running, pid := ctl.IsRunning(); running {
				return fmt.Errorf("check: daemon is running (pid %d); use `vmfleet status` for its latest results", pid)
			}
			source, err := ctx.configSource()
			if err != nil {
				return err
			}

			level := "warn"
			if verbose {
				level = "debug"
			}
			logger, err := logging.New(logging.Options{
				Level:       level,
				Format:      "console",
				OutputPaths: []string{"stderr"},
			})
			if err != nil {
				return err
			}

			store, err := healthstore.Open(cfg.Daemon.StateDB)
			if err != nil {
				return err
			}
			defer store.Close()

			d, err := daemonrun.NewDaemon(cfg, source, store, logger, daemonrun.Wiring{Heal: heal})
			if err != nil {
				return err
			}
			results := checkResults(d.RunCycle(cmd.Context()))
			if asJSON {
				return writeJSON(cmd, results)
			}
			renderCheck(cmd.OutOrStdout(), results)
			return nil
		},
	}
	cmd.Flags().BoolVar(&heal, "heal", false, "Apply restart policies to VMs that reach their failure threshold")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log probe details to stderr")
	return cmd
}

func checkResults(report lifecycle.CycleReport) []checkResult {
	results := make([]checkResult, 0, len(report.VMs))
	for _, vm := range report.VMs {
		r := checkResult{
			VM:        vm.VMName,
			Enabled:   vm.Config.Enabled,
			Probed:    vm.Probed,
			Escalated: vm.Escalated,
		}
		if vm.Probed {
			r.State = string(vm.Status.State)
			r.SSHReachable = vm.Status.SSHReachable
			r.SSHFailures = vm.Status.SSHFailures
		}
		if vm.Heal != nil {
			r.Action = string(vm.Heal.Action)
			r.Detail = vm.Heal.Message
		}
		switch {
		case vm.Err != nil:
			r.Detail = vm.Err.Error()
		case !vm.Probed && !vm.Config.Enabled:
			r.Detail = "monitoring disabled"
		}
		results = append(results, r)
	}
	return results
}

var checkColumns = []tableColumn{
	col("VM"), col("State"), col("SSH"), rightCol("Failures"), col("Escalated"), col("Action"), col("Detail"),
}

func renderCheck(out io.Writer, results []checkResult) {
	if len(results) == 0 {
		fmt.Fprintln(out, "No VMs configured")
		return
	}
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		state, ssh, failures := "-", "-", "-"
		if r.Probed {
			state = stateLabel(r.State)
			ssh = "down"
			if r.SSHReachable {
				ssh = "up"
			}
			failures = strconv.Itoa(r.SSHFailures)
		}
		action := r.Action
		if action == "" {
			action = "-"
		}
		rows = append(rows, []string{r.VM, state, ssh, failures, yesNo(r.Escalated), action, r.Detail})
	}
	fmt.Fprintln(out, renderTable(checkColumns, rows))
}
