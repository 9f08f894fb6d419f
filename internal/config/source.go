package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"vmfleet/internal/lifecycle"
)

// Source serves monitoring configuration from a TOML file, re-parsing it when
// its modification time or size changes. It is safe for concurrent use.
type Source struct {
	path string

	mu      sync.Mutex
	cfg     *Config
	modTime time.Time
	size    int64
}

// NewSource wraps an already loaded configuration. path may name a file that
// does not exist yet; the initial config is served until it appears.
func NewSource(path string, initial *Config) *Source {
	s := &Source{path: path, cfg: initial}
	if info, err := os.Stat(path); err == nil {
		s.modTime = info.ModTime()
		s.size = info.Size()
	}
	if s.cfg == nil {
		cfg := Default()
		_ = cfg.normalize()
		s.cfg = &cfg
	}
	return s
}

// Path returns the file the source watches.
func (s *Source) Path() string {
	return s.path
}

// Current returns the latest configuration, reloading the file if it changed.
// A file that fails to parse is reported on every call until it is fixed.
func (s *Source) Current() (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s.cfg, nil
		}
		return nil, fmt.Errorf("stat config: %w", err)
	}
	if info.ModTime().Equal(s.modTime) && info.Size() == s.size {
		return s.cfg, nil
	}

	cfg, _, _, err := Load(s.path)
	if err != nil {
		return nil, fmt.Errorf("reload %s: %w", s.path, err)
	}
	s.cfg = cfg
	s.modTime = info.ModTime()
	s.size = info.Size()
	return cfg, nil
}

// ListMonitoredVMs implements lifecycle.ConfigSource.
func (s *Source) ListMonitoredVMs() ([]string, error) {
	cfg, err := s.Current()
	if err != nil {
		return nil, err
	}
	return cfg.VMNames(), nil
}

// MonitoringConfig implements lifecycle.ConfigSource.
func (s *Source) MonitoringConfig(vmName string) (lifecycle.MonitoringConfig, error) {
	cfg, err := s.Current()
	if err != nil {
		return lifecycle.MonitoringConfig{}, err
	}
	return cfg.MonitoringConfig(vmName)
}

// Host returns the configured SSH host for vmName, empty when unset.
func (s *Source) Host(vmName string) (string, error) {
	cfg, err := s.Current()
	if err != nil {
		return "", err
	}
	vm, ok := cfg.VMs[vmName]
	if !ok {
		return "", fmt.Errorf("vm %q is not configured", vmName)
	}
	return vm.Host, nil
}
