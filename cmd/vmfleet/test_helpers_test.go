package main

import (
	"bytes"
	"net"
	"strings"
	"testing"

	"vmfleet/internal/config"
	"vmfleet/internal/testsupport"
)

// cloudScript answers power-state queries with "running" and accepts every
// other subcommand.
const cloudScript = `case "$2" in
  get-instance-view) echo "PowerState/running" ;;
esac`

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("VMFLEET_RESOURCE_GROUP", "")
	t.Setenv("VMFLEET_SSH_USER", "")

	cfg := testsupport.NewConfig(t, append([]testsupport.ConfigOption{testsupport.WithCloudScript(cloudScript)}, opts...)...)
	cfg.SSH.Port = closedPort(t)
	cfg.SSH.ConnectTimeoutSeconds = 2
	return &cliTestEnv{cfg: cfg, configPath: testsupport.WriteConfig(t, cfg)}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

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

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func boolPtr(v bool) *bool {
	return &v
}
