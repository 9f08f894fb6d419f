// Package probe is the default health probe: it reads the VM's power state
// from the cloud CLI, checks SSH reachability, and keeps the consecutive
// failure counter in the health store.
package probe

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"vmfleet/internal/healthstore"
	"vmfleet/internal/lifecycle"
	"vmfleet/internal/logging"
)

// Cloud reports power state and addresses for a VM.
type Cloud interface {
	PowerState(ctx context.Context, vm string) (lifecycle.VMState, error)
	PublicIP(ctx context.Context, vm string) (string, error)
}

// Dialer checks whether an SSH server answers at addr.
type Dialer interface {
	Reachable(ctx context.Context, addr string) error
}

// HostResolver returns the configured SSH host for a VM, empty when unset.
type HostResolver interface {
	Host(vm string) (string, error)
}

// Counter folds an observation into the persisted failure counter.
type Counter interface {
	RecordObservation(ctx context.Context, obs healthstore.Observation) (int, error)
}

// Prober implements lifecycle.HealthProbe.
type Prober struct {
	cloud   Cloud
	dialer  Dialer
	hosts   HostResolver
	counter Counter
	port    int
	logger  *slog.Logger
	now     func() time.Time
}

// New constructs a prober. port is the SSH port used for every VM.
func New(cloud Cloud, dialer Dialer, hosts HostResolver, counter Counter, port int, logger *slog.Logger) *Prober {
	if port <= 0 {
		port = 22
	}
	return &Prober{
		cloud:   cloud,
		dialer:  dialer,
		hosts:   hosts,
		counter: counter,
		port:    port,
		logger:  logging.NewComponentLogger(logger, "probe"),
		now:     time.Now,
	}
}

// Check probes one VM. Power-state lookup failures are folded into the status
// as StateUnknown; only a failure to persist the observation is returned.
func (p *Prober) Check(ctx context.Context, vm string) (lifecycle.HealthStatus, error) {
	logger := p.logger.With(logging.VM(vm))
	var problems []string

	state, err := p.cloud.PowerState(ctx, vm)
	if err != nil {
		state = lifecycle.StateUnknown
		problems = append(problems, "power state: "+err.Error())
		logger.Debug("power state lookup failed", logging.Error(err))
	}

	reachable := false
	if state != lifecycle.StateStopped {
		if err := p.dial(ctx, vm); err != nil {
			problems = append(problems, err.Error())
			logger.Debug("ssh unreachable", logging.Error(err))
		} else {
			reachable = true
		}
	}

	checked := p.now()
	failures, err := p.counter.RecordObservation(ctx, healthstore.Observation{
		VMName:       vm,
		State:        state,
		SSHReachable: reachable,
		CheckedAt:    checked,
		Error:        strings.Join(problems, "; "),
	})
	if err != nil {
		return lifecycle.HealthStatus{}, fmt.Errorf("persist health for %s: %w", vm, err)
	}

	return lifecycle.HealthStatus{
		VMName:       vm,
		State:        state,
		SSHReachable: reachable,
		SSHFailures:  failures,
		LastCheck:    checked,
	}, nil
}

func (p *Prober) dial(ctx context.Context, vm string) error {
	host, err := p.hosts.Host(vm)
	if err != nil {
		return fmt.Errorf("resolve host: %w", err)
	}
	if strings.TrimSpace(host) == "" {
		host, err = p.cloud.PublicIP(ctx, vm)
		if err != nil {
			return fmt.Errorf("resolve public ip: %w", err)
		}
	}
	return p.dialer.Reachable(ctx, net.JoinHostPort(host, strconv.Itoa(p.port)))
}
