package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeDaemon(); err != nil {
		return err
	}
	c.normalizeCloud()
	c.normalizeSSH()
	c.normalizeHooks()
	c.normalizeVMs()
	return nil
}

func (c *Config) normalizeDaemon() error {
	var err error
	if strings.TrimSpace(c.Daemon.PIDFile) == "" {
		c.Daemon.PIDFile = defaultPIDFile
	}
	if c.Daemon.PIDFile, err = expandPath(strings.TrimSpace(c.Daemon.PIDFile)); err != nil {
		return fmt.Errorf("daemon.pid_file: %w", err)
	}
	if strings.TrimSpace(c.Daemon.LogFile) == "" {
		c.Daemon.LogFile = defaultLogFile
	}
	if c.Daemon.LogFile, err = expandPath(strings.TrimSpace(c.Daemon.LogFile)); err != nil {
		return fmt.Errorf("daemon.log_file: %w", err)
	}
	if strings.TrimSpace(c.Daemon.StateDB) == "" {
		c.Daemon.StateDB = defaultStateDB
	}
	if c.Daemon.StateDB, err = expandPath(strings.TrimSpace(c.Daemon.StateDB)); err != nil {
		return fmt.Errorf("daemon.state_db: %w", err)
	}

	c.Daemon.LogFormat = strings.ToLower(strings.TrimSpace(c.Daemon.LogFormat))
	if c.Daemon.LogFormat == "" {
		c.Daemon.LogFormat = defaultLogFormat
	}
	c.Daemon.LogLevel = strings.ToLower(strings.TrimSpace(c.Daemon.LogLevel))
	if c.Daemon.LogLevel == "" {
		c.Daemon.LogLevel = defaultLogLevel
	}
	if c.Daemon.DefaultIntervalSeconds == 0 {
		c.Daemon.DefaultIntervalSeconds = defaultIntervalSeconds
	}
	if c.Daemon.StartupTimeoutSeconds == 0 {
		c.Daemon.StartupTimeoutSeconds = defaultStartupTimeoutSeconds
	}
	if c.Daemon.StopTimeoutSeconds == 0 {
		c.Daemon.StopTimeoutSeconds = defaultStopTimeoutSeconds
	}
	return nil
}

func (c *Config) normalizeCloud() {
	c.Cloud.CLI = strings.TrimSpace(c.Cloud.CLI)
	if c.Cloud.CLI == "" {
		c.Cloud.CLI = defaultCloudCLI
	}
	c.Cloud.ResourceGroup = strings.TrimSpace(c.Cloud.ResourceGroup)
	if c.Cloud.ResourceGroup == "" {
		if value, ok := os.LookupEnv("VMFLEET_RESOURCE_GROUP"); ok {
			c.Cloud.ResourceGroup = strings.TrimSpace(value)
		}
	}
	if c.Cloud.CommandTimeoutSeconds == 0 {
		c.Cloud.CommandTimeoutSeconds = defaultCommandTimeoutSeconds
	}
}

func (c *Config) normalizeSSH() {
	if c.SSH.Port == 0 {
		c.SSH.Port = defaultSSHPort
	}
	c.SSH.User = strings.TrimSpace(c.SSH.User)
	if c.SSH.User == "" {
		if value, ok := os.LookupEnv("VMFLEET_SSH_USER"); ok && strings.TrimSpace(value) != "" {
			c.SSH.User = strings.TrimSpace(value)
		} else {
			c.SSH.User = defaultSSHUser
		}
	}
	if c.SSH.ConnectTimeoutSeconds == 0 {
		c.SSH.ConnectTimeoutSeconds = defaultSSHConnectTimeout
	}
}

func (c *Config) normalizeHooks() {
	c.Hooks.Shell = strings.TrimSpace(c.Hooks.Shell)
	if c.Hooks.Shell == "" {
		c.Hooks.Shell = defaultHookShell
	}
	if c.Hooks.TimeoutSeconds == 0 {
		c.Hooks.TimeoutSeconds = defaultHookTimeoutSeconds
	}
}

func (c *Config) normalizeVMs() {
	if c.VMs == nil {
		c.VMs = map[string]VM{}
	}
	for name, vm := range c.VMs {
		vm.Host = strings.TrimSpace(vm.Host)
		if vm.CheckIntervalSeconds == 0 {
			vm.CheckIntervalSeconds = c.Daemon.DefaultIntervalSeconds
		}
		if vm.SSHFailureThreshold == 0 {
			vm.SSHFailureThreshold = defaultSSHFailureThreshold
		}
		vm.RestartPolicy = strings.ToLower(strings.TrimSpace(vm.RestartPolicy))
		if vm.RestartPolicy == "" {
			vm.RestartPolicy = defaultRestartPolicy
		}
		if policy, err := parsePolicy(vm.RestartPolicy); err == nil {
			vm.RestartPolicy = policy
		}
		if len(vm.Hooks) > 0 {
			hooks := make(map[string]string, len(vm.Hooks))
			for hook, command := range vm.Hooks {
				hooks[strings.ToLower(strings.TrimSpace(hook))] = strings.TrimSpace(command)
			}
			vm.Hooks = hooks
		}
		c.VMs[name] = vm
	}
}
