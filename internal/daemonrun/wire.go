package daemonrun

import (
	"errors"
	"log/slog"

	"vmfleet/internal/cloudcli"
	"vmfleet/internal/config"
	"vmfleet/internal/healing"
	"vmfleet/internal/healthstore"
	"vmfleet/internal/hooks"
	"vmfleet/internal/lifecycle"
	"vmfleet/internal/probe"
)

// Wiring selects which side effects a daemon built by NewDaemon may have.
type Wiring struct {
	// Heal enables the cloud remediation healer.
	Heal bool
	// Hooks enables on_failure/on_healthy hook execution.
	Hooks bool
}

// NewDaemon assembles a lifecycle daemon from the production collaborators.
// source supplies per-pass configuration; cfg supplies process-wide settings
// that only take effect on restart.
func NewDaemon(cfg *config.Config, source *config.Source, store *healthstore.Store, logger *slog.Logger, w Wiring) (*lifecycle.Daemon, error) {
	if cfg == nil || source == nil || store == nil {
		return nil, errors.New("daemon wiring requires config, config source and health store")
	}

	cloud := cloudcli.New(cfg.Cloud.CLI, cfg.Cloud.ResourceGroup, cfg.CommandTimeout(), nil)
	dialer := probe.SSHDialer{User: cfg.SSH.User, Timeout: cfg.SSHConnectTimeout()}
	opts := lifecycle.Options{
		Source:          source,
		Probe:           probe.New(cloud, dialer, source, store, cfg.SSH.Port, logger),
		PIDFile:         cfg.Daemon.PIDFile,
		Logger:          logger,
		DefaultInterval: cfg.DefaultInterval(),
	}
	if w.Heal {
		opts.Healer = healing.New(cloud, source, store, logger)
	}
	if w.Hooks {
		opts.Hooks = hooks.New(cfg.Hooks.Shell, cfg.HookTimeout(), logger)
	}
	return lifecycle.New(opts)
}
