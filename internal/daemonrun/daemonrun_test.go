package daemonrun

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vmfleet/internal/config"
	"vmfleet/internal/lifecycle"
	"vmfleet/internal/logging"
	"vmfleet/internal/testsupport"
)

// cloudScript answers power-state queries with "running" and records every
// invocation next to the stub.
const cloudScript = `echo "$@" >> "$(dirname "$0")/calls.log"
case "$2" in
  get-instance-view) echo "PowerState/running" ;;
esac`

func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

func TestNewDaemonRequiresCollaborators(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := NewDaemon(cfg, nil, nil, logging.NewNop(), Wiring{}); err == nil {
		t.Fatal("expected error without source and store")
	}
}

func TestNewDaemonEscalatesUnreachableVM(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithCloudScript(cloudScript),
		testsupport.WithVM("dev-box", config.VM{
			Host:                 "127.0.0.1",
			CheckIntervalSeconds: 30,
			SSHFailureThreshold:  1,
			RestartPolicy:        "on-failure",
		}),
	)
	cfg.SSH.Port = closedPort(t)
	cfg.SSH.ConnectTimeoutSeconds = 2
	store := testsupport.OpenHealthStore(t, cfg)
	source := config.NewSource(filepath.Join(testsupport.BaseDir(cfg), "absent.toml"), cfg)

	d, err := NewDaemon(cfg, source, store, logging.NewNop(), Wiring{Heal: true})
	if err != nil {
		t.Fatalf("NewDaemon: %v", err)
	}

	ctx := context.Background()
	report := d.RunCycle(ctx)
	if len(report.VMs) != 1 {
		t.Fatalf("expected one vm report, got %+v", report)
	}
	vm := report.VMs[0]
	if vm.Err != nil || !vm.Probed || vm.Status.SSHReachable || vm.Status.State != lifecycle.StateRunning {
		t.Fatalf("unexpected vm report %+v", vm)
	}
	if !vm.Escalated || vm.Heal == nil || vm.Heal.Action != lifecycle.HealRestart || !vm.Heal.Success {
		t.Fatalf("expected a successful restart, got %+v", vm)
	}
	if report.NextInterval != 30*time.Second {
		t.Fatalf("next interval = %s, want 30s", report.NextInterval)
	}

	calls, err := os.ReadFile(filepath.Join(testsupport.BaseDir(cfg), "bin", "calls.log"))
	if err != nil {
		t.Fatalf("read cloud calls: %v", err)
	}
	if !strings.Contains(string(calls), "vm restart --resource-group rg-test --name dev-box") {
		t.Fatalf("restart not issued; calls:\n%s", calls)
	}

	rec, err := store.Get(ctx, "dev-box")
	if err != nil || rec == nil {
		t.Fatalf("health record: %+v, %v", rec, err)
	}
	if rec.SSHFailures != 0 {
		t.Fatalf("successful restart should reset the failure counter, got %d", rec.SSHFailures)
	}
	journal, err := store.Remediations(ctx, "dev-box", 0)
	if err != nil || len(journal) != 1 || journal[0].IncidentID == "" {
		t.Fatalf("remediation journal: %+v, %v", journal, err)
	}
}

func TestNewDaemonWithoutHealingOnlyObserves(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithCloudScript(cloudScript),
		testsupport.WithVM("dev-box", config.VM{
			Host:                 "127.0.0.1",
			CheckIntervalSeconds: 30,
			SSHFailureThreshold:  1,
			RestartPolicy:        "always",
		}),
	)
	cfg.SSH.Port = closedPort(t)
	store := testsupport.OpenHealthStore(t, cfg)
	source := config.NewSource(filepath.Join(testsupport.BaseDir(cfg), "absent.toml"), cfg)

	d, err := NewDaemon(cfg, source, store, logging.NewNop(), Wiring{})
	if err != nil {
		t.Fatalf("NewDaemon: %v", err)
	}
	vm := d.RunCycle(context.Background()).VMs[0]
	if vm.Heal == nil || vm.Heal.Action != lifecycle.HealNone {
		t.Fatalf("expected the no-op healer, got %+v", vm.Heal)
	}
	rec, err := store.Get(context.Background(), "dev-box")
	if err != nil || rec == nil || rec.SSHFailures != 1 {
		t.Fatalf("expected one recorded failure, got %+v (%v)", rec, err)
	}
}

func TestRunWritesPIDFileUntilCancelled(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithCloudScript(cloudScript))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, cfg, Options{
			ConfigPath: filepath.Join(testsupport.BaseDir(cfg), "absent.toml"),
		})
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(cfg.Daemon.PIDFile); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("pid file never appeared")
		}
		select {
		case err := <-done:
			t.Fatalf("Run returned early: %v", err)
		case <-time.After(20 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	if _, err := os.Stat(cfg.Daemon.PIDFile); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("pid file should be removed on shutdown, stat err = %v", err)
	}
	logData, err := os.ReadFile(cfg.Daemon.LogFile)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	for _, want := range []string{"preflight snapshot", "session_id=", "vm_names="} {
		if !strings.Contains(string(logData), want) {
			t.Fatalf("log missing %q:\n%s", want, logData)
		}
	}
}

func TestNewLoggerWritesStdoutAndLogFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	stdout, err := os.Create(filepath.Join(t.TempDir(), "stdout"))
	if err != nil {
		t.Fatalf("create stdout stand-in: %v", err)
	}
	defer stdout.Close()
	orig := os.Stdout
	os.Stdout = stdout
	logger, err := newLogger(cfg, Options{})
	os.Stdout = orig
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}

	logger.Info("sink check")
	for _, path := range []string{stdout.Name(), cfg.Daemon.LogFile} {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		if !strings.Contains(string(data), "sink check") {
			t.Fatalf("%s missing log line: %q", path, data)
		}
	}
}
