// Package daemonrun wires and runs the vmfleet daemon for one process.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"vmfleet/internal/config"
	"vmfleet/internal/healthstore"
	"vmfleet/internal/logging"
	"vmfleet/internal/preflight"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// ConfigPath is re-read every pass; empty means the defaults in cfg.
	ConfigPath string
	// LogLevel overrides daemon.log_level when set.
	LogLevel string
}

// Run starts the monitoring daemon and blocks until SIGINT/SIGTERM or
// cancellation of cmdCtx. SIGHUP requests a configuration reload.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := newLogger(cfg, opts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.Info("vmfleet daemon starting",
		logging.String(logging.FieldEventType, "daemon_starting"),
		logging.String("config", opts.ConfigPath),
		logging.Int("vms", len(cfg.VMs)),
		logging.Strings("vm_names", cfg.VMNames()),
	)
	logPreflightSnapshot(logger, cfg)

	store, err := healthstore.Open(cfg.Daemon.StateDB)
	if err != nil {
		logging.ErrorWithContext(logger, "open health store", "health_store_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check daemon.state_db permissions"),
		)
		return err
	}
	defer store.Close()

	source := config.NewSource(opts.ConfigPath, cfg)
	d, err := NewDaemon(cfg, source, store, logger, Wiring{Heal: true, Hooks: true})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-signalCtx.Done():
				return
			case <-hup:
				d.ReloadConfig()
			}
		}
	}()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run `vmfleet status` to find the running daemon"),
		)
		return err
	}
	logger.Info("vmfleet daemon shut down", logging.String(logging.FieldEventType, "daemon_stopped"))
	return nil
}

func newLogger(cfg *config.Config, opts Options) (*slog.Logger, error) {
	level := strings.TrimSpace(opts.LogLevel)
	if level == "" {
		level = cfg.Daemon.LogLevel
	}
	return logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Daemon.LogFormat,
		OutputPaths: []string{"stdout", cfg.Daemon.LogFile},
		SessionID:   uuid.NewString(),
	})
}

func logPreflightSnapshot(logger *slog.Logger, cfg *config.Config) {
	results := preflight.RunAll(cfg)
	attrs := []logging.Attr{logging.String(logging.FieldEventType, "preflight_snapshot")}
	for _, r := range results {
		attrs = append(attrs, logging.Bool(snapshotKey(r.Name), r.Passed))
	}
	logger.Info("preflight snapshot", logging.Args(attrs...)...)

	for _, r := range preflight.Failed(results) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "install the missing binary or fix directory permissions"),
			logging.String(logging.FieldImpact, "probes or remediation for every vm will fail"),
		)
	}
}

func snapshotKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_") + "_ok"
}
