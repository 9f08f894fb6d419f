package config

import (
	"errors"
	"fmt"
	"strings"

	"vmfleet/internal/lifecycle"
	"vmfleet/internal/logging"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDaemon(); err != nil {
		return err
	}
	if err := c.validateCloud(); err != nil {
		return err
	}
	if err := c.validateSSH(); err != nil {
		return err
	}
	if err := c.validateHooks(); err != nil {
		return err
	}
	for _, name := range c.VMNames() {
		if err := c.validateVM(name); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateDaemon() error {
	if !logging.ValidLevel(c.Daemon.LogLevel) {
		return fmt.Errorf("daemon.log_level: unsupported value %q", c.Daemon.LogLevel)
	}
	switch c.Daemon.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("daemon.log_format: unsupported value %q (want console or json)", c.Daemon.LogFormat)
	}
	if c.Daemon.DefaultIntervalSeconds < 1 {
		return errors.New("daemon.default_interval_seconds must be positive")
	}
	if c.Daemon.StartupTimeoutSeconds < 1 {
		return errors.New("daemon.startup_timeout_seconds must be positive")
	}
	if c.Daemon.StopTimeoutSeconds < 1 {
		return errors.New("daemon.stop_timeout_seconds must be positive")
	}
	if c.Daemon.PIDFile == c.Daemon.LogFile {
		return errors.New("daemon.pid_file and daemon.log_file must differ")
	}
	return nil
}

func (c *Config) validateCloud() error {
	if strings.ContainsAny(c.Cloud.CLI, " \t") {
		return fmt.Errorf("cloud.cli must be a single executable, got %q", c.Cloud.CLI)
	}
	if c.Cloud.CommandTimeoutSeconds < 1 {
		return errors.New("cloud.command_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateSSH() error {
	if c.SSH.Port < 1 || c.SSH.Port > 65535 {
		return fmt.Errorf("ssh.port must be between 1 and 65535, got %d", c.SSH.Port)
	}
	if c.SSH.ConnectTimeoutSeconds < 1 {
		return errors.New("ssh.connect_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateHooks() error {
	if c.Hooks.TimeoutSeconds < 1 {
		return errors.New("hooks.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateVM(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("vms: table names must not be empty")
	}
	vm := c.VMs[name]
	for hook := range vm.Hooks {
		switch hook {
		case lifecycle.HookOnFailure, lifecycle.HookOnHealthy:
		default:
			return fmt.Errorf("vms.%s.hooks: unknown hook %q (want %s or %s)", name, hook, lifecycle.HookOnFailure, lifecycle.HookOnHealthy)
		}
	}
	mc, err := c.MonitoringConfig(name)
	if err != nil {
		return err
	}
	if err := mc.Validate(); err != nil {
		return fmt.Errorf("vms.%s: %w", name, err)
	}
	return nil
}

func parsePolicy(value string) (string, error) {
	policy, err := lifecycle.ParseRestartPolicy(value)
	if err != nil {
		return "", err
	}
	return string(policy), nil
}
