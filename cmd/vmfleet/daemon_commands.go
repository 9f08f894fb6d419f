package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"vmfleet/internal/daemonctl"
	"vmfleet/internal/daemonrun"
	"vmfleet/internal/logstream"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var foreground bool
	var logLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the vmfleet daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := ctx.controller(daemonrun.Options{LogLevel: logLevel})
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			if foreground {
				fmt.Fprintln(stdout, "Running daemon in the foreground (Ctrl+C to stop)")
				return ctl.Start(cmd.Context(), true)
			}
			if err := ctl.Start(cmd.Context(), false); err != nil {
				return err
			}
			_, pid := ctl.IsRunning()
			fmt.Fprintf(stdout, "Daemon started (pid %d)\n", pid)
			fmt.Fprintf(stdout, "Logs: %s\n", ctl.LogFile())
			return nil
		},
	}
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in this process instead of detaching")
	startCmd.Flags().StringVar(&logLevel, "log-level", "", "Override daemon.log_level for a foreground run")

	var stopTimeout time.Duration
	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the vmfleet daemon (SIGTERM, then SIGKILL after --timeout)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := ctx.controller(daemonrun.Options{})
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			result, err := ctl.Stop(stopTimeout)
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(stdout, "Daemon did not exit in time; killed pid %d\n", result.PID)
				return nil
			}
			fmt.Fprintf(stdout, "Daemon stopped (pid %d)\n", result.PID)
			return nil
		},
	}
	stopCmd.Flags().DurationVar(&stopTimeout, "timeout", 0, "Grace period before SIGKILL (default daemon.stop_timeout_seconds)")

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the vmfleet daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := ctx.controller(daemonrun.Options{})
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			result, err := ctl.Restart(cmd.Context())
			if err != nil {
				return err
			}
			if result.WasRunning {
				if result.Stop.ForcedKill {
					fmt.Fprintf(stdout, "Killed pid %d after the stop timeout\n", result.Stop.PID)
				}
				fmt.Fprintln(stdout, "Daemon stopped")
			}
			fmt.Fprintf(stdout, "Daemon restarted (pid %d)\n", result.PID)
			return nil
		},
	}

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency and fleet status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := ctx.controller(daemonrun.Options{})
			if err != nil {
				return err
			}
			snapshot := buildStatusSnapshot(cmd.Context(), ctx, ctl)
			if statusJSON {
				return writeJSON(cmd, snapshot)
			}
			renderStatus(cmd.OutOrStdout(), snapshot)
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print status as JSON")

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var opts logstream.Options
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := ctx.controller(daemonrun.Options{})
			if err != nil {
				return err
			}
			streamCtx := cmd.Context()
			if opts.Follow {
				var stop context.CancelFunc
				streamCtx, stop = signal.NotifyContext(streamCtx, os.Interrupt, syscall.SIGTERM)
				defer stop()
			}
			stdout := cmd.OutOrStdout()
			_, err = logstream.Stream(streamCtx, ctl, opts, func(line string) {
				fmt.Fprintln(stdout, line)
			})
			if errors.Is(err, daemonctl.ErrLogNotFound) {
				return fmt.Errorf("%w; start the daemon with `vmfleet start`", err)
			}
			return err
		},
	}
	cmd.Flags().IntVarP(&opts.Lines, "lines", "n", daemonctl.DefaultLogLines, "Number of lines to show")
	cmd.Flags().BoolVarP(&opts.Follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().StringVar(&opts.Filters.VM, "vm", "", "Only show lines about this VM")
	cmd.Flags().StringVar(&opts.Filters.Level, "level", "", "Minimum level to show (debug, info, warn, error)")
	cmd.Flags().StringVar(&opts.Filters.Search, "search", "", "Only show lines containing this text")
	return cmd
}
