// Package cloudcli wraps the cloud provider CLI (az) for the handful of VM
// operations the monitor needs: power state, address lookup, start, restart.
package cloudcli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"vmfleet/internal/lifecycle"
)

// ErrNoResourceGroup is returned when a VM command is issued without a resource group.
var ErrNoResourceGroup = errors.New("cloud resource group not configured (set cloud.resource_group or VMFLEET_RESOURCE_GROUP)")

// Runner executes a command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// CommandError carries the CLI's stderr alongside the exit error.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: %v", strings.Join(e.Args, " "), e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, &CommandError{
			Args:   append([]string{name}, args...),
			Stderr: strings.TrimSpace(stderr.String()),
			Err:    err,
		}
	}
	return out, nil
}

// Client issues VM commands through the configured CLI binary.
type Client struct {
	binary        string
	resourceGroup string
	timeout       time.Duration
	runner        Runner
}

// New constructs a client. A nil runner executes real processes.
func New(binary, resourceGroup string, timeout time.Duration, runner Runner) *Client {
	if runner == nil {
		runner = execRunner{}
	}
	if strings.TrimSpace(binary) == "" {
		binary = "az"
	}
	return &Client{
		binary:        binary,
		resourceGroup: strings.TrimSpace(resourceGroup),
		timeout:       timeout,
		runner:        runner,
	}
}

// Binary returns the CLI executable name.
func (c *Client) Binary() string {
	return c.binary
}

// PowerState maps the VM's PowerState/* status code onto a lifecycle state.
func (c *Client) PowerState(ctx context.Context, vm string) (lifecycle.VMState, error) {
	out, err := c.vmCommand(ctx, vm, "vm", "get-instance-view",
		"--query", "instanceView.statuses[?starts_with(code, 'PowerState/')].code | [0]",
		"--output", "tsv",
	)
	if err != nil {
		return lifecycle.StateUnknown, err
	}
	return ParsePowerState(string(out)), nil
}

// PublicIP returns the VM's first public IP address.
func (c *Client) PublicIP(ctx context.Context, vm string) (string, error) {
	out, err := c.vmCommand(ctx, vm, "vm", "show", "--show-details",
		"--query", "publicIps",
		"--output", "tsv",
	)
	if err != nil {
		return "", err
	}
	for _, field := range strings.FieldsFunc(string(out), func(r rune) bool { return r == ',' || r == '\n' || r == '\t' }) {
		if ip := strings.TrimSpace(field); ip != "" {
			return ip, nil
		}
	}
	return "", fmt.Errorf("vm %s has no public ip", vm)
}

// Start boots a stopped or deallocated VM.
func (c *Client) Start(ctx context.Context, vm string) error {
	_, err := c.vmCommand(ctx, vm, "vm", "start")
	return err
}

// Restart reboots a running VM.
func (c *Client) Restart(ctx context.Context, vm string) error {
	_, err := c.vmCommand(ctx, vm, "vm", "restart")
	return err
}

func (c *Client) vmCommand(ctx context.Context, vm string, args ...string) ([]byte, error) {
	if c.resourceGroup == "" {
		return nil, ErrNoResourceGroup
	}
	if strings.TrimSpace(vm) == "" {
		return nil, errors.New("vm name is empty")
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	args = append(args, "--resource-group", c.resourceGroup, "--name", vm)
	return c.runner.Run(ctx, c.binary, args...)
}

// ParsePowerState maps an az power-state code such as "PowerState/running".
func ParsePowerState(code string) lifecycle.VMState {
	code = strings.ToLower(strings.TrimSpace(code))
	code = strings.TrimPrefix(code, "powerstate/")
	switch code {
	case "running":
		return lifecycle.StateRunning
	case "stopped", "deallocated", "stopping", "deallocating":
		return lifecycle.StateStopped
	default:
		return lifecycle.StateUnknown
	}
}
