// Package testsupport builds throwaway vmfleet configurations for tests.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"vmfleet/internal/config"
	"vmfleet/internal/healthstore"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config whose state files live in a per-test temp
// directory, which exists on return. It applies any provided options in order.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Daemon.PIDFile = filepath.Join(base, "state", "vmfleet.pid")
	cfgVal.Daemon.LogFile = filepath.Join(base, "state", "vmfleet.log")
	cfgVal.Daemon.StateDB = filepath.Join(base, "state", "health.db")
	cfgVal.Cloud.ResourceGroup = "rg-test"
	cfgVal.VMs = map[string]config.VM{}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("create state directories: %v", err)
	}
	return builder.cfg
}

// WithVM adds a monitored VM. Zero fields take the loader's defaults once the
// config is written and reloaded.
func WithVM(name string, vm config.VM) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.VMs[name] = vm
	}
}

// WithCloudScript writes a stub cloud CLI that runs script under /bin/sh and
// points the config at it.
func WithCloudScript(script string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Cloud.CLI = writeExecutable(b.t, filepath.Join(b.baseDir, "bin"), "az", script)
	}
}

// WithStubbedBinaries writes stub executables that exit zero and prepends
// their directory to PATH.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		for _, name := range names {
			writeExecutable(b.t, binDir, name, "exit 0")
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(filepath.Dir(cfg.Daemon.StateDB))
}

// WriteConfig encodes cfg as TOML next to its state directory and returns
// the file path.
func WriteConfig(t testing.TB, cfg *config.Config) string {
	t.Helper()
	encoded, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	path := filepath.Join(BaseDir(cfg), "config.toml")
	if err := os.WriteFile(path, []byte(encoded), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// OpenHealthStore opens the config's health database and closes it when the
// test ends.
func OpenHealthStore(t testing.TB, cfg *config.Config) *healthstore.Store {
	t.Helper()
	store, err := healthstore.Open(cfg.Daemon.StateDB)
	if err != nil {
		t.Fatalf("open health store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func writeExecutable(t testing.TB, dir, name, script string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	target := filepath.Join(dir, name)
	if err := os.WriteFile(target, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return target
}
