package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"vmfleet/internal/config"
)

func TestNewConfigCreatesStateDirectories(t *testing.T) {
	cfg := NewConfig(t)
	for _, path := range []string{cfg.Daemon.PIDFile, cfg.Daemon.LogFile, cfg.Daemon.StateDB} {
		info, err := os.Stat(filepath.Dir(path))
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory for %s: %v", path, err)
		}
	}
	if err := os.WriteFile(cfg.Daemon.LogFile, []byte("line\n"), 0o644); err != nil {
		t.Fatalf("write log in state directory: %v", err)
	}
}

func TestWriteConfigRoundTrips(t *testing.T) {
	cfg := NewConfig(t, WithVM("dev-box", config.VM{Host: "10.0.0.4"}))
	path := WriteConfig(t, cfg)

	loaded, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("load written config: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("resolved=%q exists=%v", resolved, exists)
	}
	if loaded.Daemon.PIDFile != cfg.Daemon.PIDFile || loaded.VMs["dev-box"].Host != "10.0.0.4" {
		t.Fatalf("unexpected loaded config: %+v", loaded)
	}
}
