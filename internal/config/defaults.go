package config

const (
	defaultPIDFile               = "~/.local/state/vmfleet/lifecycle.pid"
	defaultLogFile               = "~/.local/state/vmfleet/lifecycle.log"
	defaultStateDB               = "~/.local/state/vmfleet/health.db"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultIntervalSeconds       = 60
	defaultStartupTimeoutSeconds = 10
	defaultStopTimeoutSeconds    = 30
	defaultCloudCLI              = "az"
	defaultCommandTimeoutSeconds = 120
	defaultSSHPort               = 22
	defaultSSHUser               = "azureuser"
	defaultSSHConnectTimeout     = 10
	defaultHookShell             = "/bin/sh"
	defaultHookTimeoutSeconds    = 300
	defaultSSHFailureThreshold   = 3
	defaultRestartPolicy         = "on-failure"
)

// Default returns a Config populated with repository defaults and no VMs.
func Default() Config {
	return Config{
		Daemon: Daemon{
			PIDFile:                defaultPIDFile,
			LogFile:                defaultLogFile,
			LogLevel:               defaultLogLevel,
			LogFormat:              defaultLogFormat,
			StateDB:                defaultStateDB,
			DefaultIntervalSeconds: defaultIntervalSeconds,
			StartupTimeoutSeconds:  defaultStartupTimeoutSeconds,
			StopTimeoutSeconds:     defaultStopTimeoutSeconds,
		},
		Cloud: Cloud{
			CLI:                   defaultCloudCLI,
			CommandTimeoutSeconds: defaultCommandTimeoutSeconds,
		},
		SSH: SSH{
			Port:                  defaultSSHPort,
			ConnectTimeoutSeconds: defaultSSHConnectTimeout,
		},
		Hooks: Hooks{
			Shell:          defaultHookShell,
			TimeoutSeconds: defaultHookTimeoutSeconds,
		},
		VMs: map[string]VM{},
	}
}
