package cloudcli

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"vmfleet/internal/lifecycle"
)

type recordingRunner struct {
	calls  [][]string
	output string
	err    error
	ctxErr bool
}

func (r *recordingRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	if _, ok := ctx.Deadline(); ok {
		r.ctxErr = true
	}
	return []byte(r.output), r.err
}

func TestParsePowerState(t *testing.T) {
	tests := map[string]lifecycle.VMState{
		"PowerState/running\n":   lifecycle.StateRunning,
		"PowerState/deallocated": lifecycle.StateStopped,
		"PowerState/stopping":    lifecycle.StateStopped,
		"PowerState/starting":    lifecycle.StateUnknown,
		"":                       lifecycle.StateUnknown,
	}
	for input, want := range tests {
		if got := ParsePowerState(input); got != want {
			t.Errorf("ParsePowerState(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestPowerStateBuildsCommand(t *testing.T) {
	runner := &recordingRunner{output: "PowerState/running\n"}
	client := New("az", "fleet-rg", time.Minute, runner)

	state, err := client.PowerState(context.Background(), "dev-box")
	if err != nil {
		t.Fatalf("PowerState: %v", err)
	}
	if state != lifecycle.StateRunning {
		t.Fatalf("state = %q", state)
	}
	got := strings.Join(runner.calls[0], " ")
	if !strings.HasPrefix(got, "az vm get-instance-view ") || !strings.HasSuffix(got, "--resource-group fleet-rg --name dev-box") {
		t.Fatalf("unexpected command: %s", got)
	}
	if !runner.ctxErr {
		t.Fatal("expected the command context to carry a deadline")
	}
}

func TestStartRestartAndPublicIP(t *testing.T) {
	runner := &recordingRunner{output: "20.1.2.3,20.1.2.4\n"}
	client := New("", "fleet-rg", 0, runner)

	if err := client.Start(context.Background(), "web"); err != nil {
		t.Fatal(err)
	}
	if err := client.Restart(context.Background(), "web"); err != nil {
		t.Fatal(err)
	}
	ip, err := client.PublicIP(context.Background(), "web")
	if err != nil || ip != "20.1.2.3" {
		t.Fatalf("PublicIP = %q, %v", ip, err)
	}
	if runner.calls[0][0] != "az" || runner.calls[0][2] != "start" || runner.calls[1][2] != "restart" {
		t.Fatalf("unexpected calls: %v", runner.calls)
	}
}

func TestMissingResourceGroup(t *testing.T) {
	runner := &recordingRunner{}
	client := New("az", "", time.Minute, runner)
	if err := client.Start(context.Background(), "web"); !errors.Is(err, ErrNoResourceGroup) {
		t.Fatalf("err = %v, want ErrNoResourceGroup", err)
	}
	if len(runner.calls) != 0 {
		t.Fatal("runner should not be called without a resource group")
	}
}

func TestExecRunnerCapturesStderr(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	_, err := execRunner{}.Run(context.Background(), "sh", "-c", "echo boom >&2; exit 3")
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("err = %v, want *CommandError", err)
	}
	if cmdErr.Stderr != "boom" || !strings.Contains(cmdErr.Error(), "boom") {
		t.Fatalf("unexpected command error: %v", cmdErr)
	}
}
