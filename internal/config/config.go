package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"vmfleet/internal/lifecycle"
)

//go:embed sample_config.toml
var sampleConfig string

// Daemon contains file locations and timing for the lifecycle daemon.
type Daemon struct {
	PIDFile                string `toml:"pid_file"`
	LogFile                string `toml:"log_file"`
	LogLevel               string `toml:"log_level"`
	LogFormat              string `toml:"log_format"`
	StateDB                string `toml:"state_db"`
	DefaultIntervalSeconds int    `toml:"default_interval_seconds"`
	StartupTimeoutSeconds  int    `toml:"startup_timeout_seconds"`
	StopTimeoutSeconds     int    `toml:"stop_timeout_seconds"`
}

// Cloud configures the provider CLI used for power state and remediation.
type Cloud struct {
	CLI                   string `toml:"cli"`
	ResourceGroup         string `toml:"resource_group"`
	CommandTimeoutSeconds int    `toml:"command_timeout_seconds"`
}

// SSH configures the reachability probe.
type SSH struct {
	Port                  int    `toml:"port"`
	User                  string `toml:"user"`
	ConnectTimeoutSeconds int    `toml:"connect_timeout_seconds"`
}

// Hooks configures how hook commands are executed.
type Hooks struct {
	Shell          string `toml:"shell"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// VM is one monitored virtual machine. Enabled defaults to true when omitted.
type VM struct {
	Enabled              *bool             `toml:"enabled"`
	Host                 string            `toml:"host"`
	CheckIntervalSeconds int               `toml:"check_interval_seconds"`
	SSHFailureThreshold  int               `toml:"ssh_failure_threshold"`
	RestartPolicy        string            `toml:"restart_policy"`
	Hooks                map[string]string `toml:"hooks"`
}

// IsEnabled reports whether monitoring is on for the VM.
func (v VM) IsEnabled() bool {
	return v.Enabled == nil || *v.Enabled
}

// Config encapsulates all configuration values for vmfleet.
//
// Configuration sections by subsystem:
//   - Daemon: pid/log/state file locations, log format, timing
//   - Cloud: provider CLI binary, resource group, command timeout
//   - SSH: reachability probe port, user, timeout
//   - Hooks: shell and timeout for hook commands
//   - VMs: per-VM monitoring table keyed by VM name
type Config struct {
	Daemon Daemon        `toml:"daemon"`
	Cloud  Cloud         `toml:"cloud"`
	SSH    SSH           `toml:"ssh"`
	Hooks  Hooks         `toml:"hooks"`
	VMs    map[string]VM `toml:"vms"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/vmfleet/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. A missing file yields defaults with no VMs.
func Load(path string) (*Config, string, bool, error) {
	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	cfg := Default()
	if exists {
		if err := decodeFile(resolvedPath, &cfg); err != nil {
			return nil, "", false, err
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("parse config: %s", strings.TrimSpace(strict.String()))
		}
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("vmfleet.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// VMNames returns the configured VM names in sorted order.
func (c *Config) VMNames() []string {
	names := make([]string, 0, len(c.VMs))
	for name := range c.VMs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MonitoringConfig converts the VM table entry into the daemon's view of it.
func (c *Config) MonitoringConfig(name string) (lifecycle.MonitoringConfig, error) {
	vm, ok := c.VMs[name]
	if !ok {
		return lifecycle.MonitoringConfig{}, fmt.Errorf("vm %q is not configured", name)
	}
	policy, err := lifecycle.ParseRestartPolicy(vm.RestartPolicy)
	if err != nil {
		return lifecycle.MonitoringConfig{}, fmt.Errorf("vms.%s: %w", name, err)
	}
	hooks := make(map[string]string, len(vm.Hooks))
	for k, v := range vm.Hooks {
		hooks[k] = v
	}
	return lifecycle.MonitoringConfig{
		Enabled:              vm.IsEnabled(),
		CheckIntervalSeconds: vm.CheckIntervalSeconds,
		SSHFailureThreshold:  vm.SSHFailureThreshold,
		RestartPolicy:        policy,
		Hooks:                hooks,
	}, nil
}

// EnsureDirectories creates the directories holding daemon state files.
func (c *Config) EnsureDirectories() error {
	for _, path := range []string{c.Daemon.PIDFile, c.Daemon.LogFile, c.Daemon.StateDB} {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DefaultInterval returns the sleep used when no VM is enabled.
func (c *Config) DefaultInterval() time.Duration {
	return time.Duration(c.Daemon.DefaultIntervalSeconds) * time.Second
}

// StartupTimeout bounds how long a background start waits for the PID file.
func (c *Config) StartupTimeout() time.Duration {
	return time.Duration(c.Daemon.StartupTimeoutSeconds) * time.Second
}

// StopTimeout bounds how long stop waits after SIGTERM before SIGKILL.
func (c *Config) StopTimeout() time.Duration {
	return time.Duration(c.Daemon.StopTimeoutSeconds) * time.Second
}

// CommandTimeout bounds one cloud CLI invocation.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Cloud.CommandTimeoutSeconds) * time.Second
}

// SSHConnectTimeout bounds one SSH handshake.
func (c *Config) SSHConnectTimeout() time.Duration {
	return time.Duration(c.SSH.ConnectTimeoutSeconds) * time.Second
}

// HookTimeout bounds one hook process.
func (c *Config) HookTimeout() time.Duration {
	return time.Duration(c.Hooks.TimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
// An existing file is left untouched and reported as an error.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("config already exists at %s", path)
		}
		return fmt.Errorf("write sample config: %w", err)
	}
	if _, err := file.WriteString(sampleConfig); err != nil {
		file.Close()
		return fmt.Errorf("write sample config: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() (string, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return string(data), nil
}
