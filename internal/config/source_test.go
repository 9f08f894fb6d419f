package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"vmfleet/internal/config"
)

func TestSourceReloadsChangedFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	path := writeConfig(t, dir, "[vms.web]\nssh_failure_threshold = 2\n")

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	source := config.NewSource(path, cfg)

	vms, err := source.ListMonitoredVMs()
	if err != nil || len(vms) != 1 || vms[0] != "web" {
		t.Fatalf("ListMonitoredVMs = %v, %v", vms, err)
	}

	updated := "[vms.web]\nssh_failure_threshold = 4\n\n[vms.db]\nenabled = false\n"
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	vms, err = source.ListMonitoredVMs()
	if err != nil || len(vms) != 2 {
		t.Fatalf("ListMonitoredVMs after edit = %v, %v", vms, err)
	}
	web, err := source.MonitoringConfig("web")
	if err != nil {
		t.Fatalf("MonitoringConfig: %v", err)
	}
	if web.SSHFailureThreshold != 4 {
		t.Fatalf("threshold = %d, want 4", web.SSHFailureThreshold)
	}
}

func TestSourceReportsBrokenFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := writeConfig(t, t.TempDir(), "[vms.web]\n")
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	source := config.NewSource(path, cfg)

	if err := os.WriteFile(path, []byte("[vms.web\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}
	if _, err := source.ListMonitoredVMs(); err == nil {
		t.Fatal("expected parse error after corrupting config")
	}
}

func TestSourceWithoutFileServesInitial(t *testing.T) {
	source := config.NewSource(filepath.Join(t.TempDir(), "absent.toml"), nil)
	vms, err := source.ListMonitoredVMs()
	if err != nil {
		t.Fatalf("ListMonitoredVMs: %v", err)
	}
	if len(vms) != 0 {
		t.Fatalf("expected no vms, got %v", vms)
	}
}
