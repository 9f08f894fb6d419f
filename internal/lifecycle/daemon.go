package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"vmfleet/internal/logging"
	"vmfleet/internal/pidfile"
)

// DefaultInterval is the sleep between passes when no VM is enabled.
const DefaultInterval = 60 * time.Second

const (
	phaseNotStarted int32 = iota
	phaseRunning
	phaseStopping
	phaseStopped
)

// Options configures a Daemon. Source, Probe and PIDFile are required.
type Options struct {
	Source  ConfigSource
	Probe   HealthProbe
	Healer  Healer
	Hooks   HookRunner
	PIDFile string
	Logger  *slog.Logger

	// DefaultInterval overrides DefaultInterval when positive.
	DefaultInterval time.Duration
	// Now overrides the wall clock; tests use it to control uptime.
	Now func() time.Time
}

// Daemon is the monitoring loop for one process.
type Daemon struct {
	source          ConfigSource
	probe           HealthProbe
	healer          Healer
	hooks           HookRunner
	logger          *slog.Logger
	pidPath         string
	lockPath        string
	lock            *flock.Flock
	defaultInterval time.Duration
	now             func() time.Time

	phase atomic.Int32
	wake  chan struct{}

	mu        sync.Mutex
	pid       int
	startedAt time.Time

	// cycleMu serializes passes; lastFailures is only touched while it is held.
	cycleMu      sync.Mutex
	lastFailures map[string]int
}

// New constructs a daemon from its collaborators. A nil Healer or HookRunner
// is replaced with a no-op.
func New(opts Options) (*Daemon, error) {
	if opts.Source == nil || opts.Probe == nil {
		return nil, errors.New("lifecycle daemon requires a config source and a health probe")
	}
	pidPath := strings.TrimSpace(opts.PIDFile)
	if pidPath == "" {
		return nil, errors.New("lifecycle daemon requires a pid file path")
	}

	healer := opts.Healer
	if healer == nil {
		healer = noopHealer{}
	}
	hooks := opts.Hooks
	if hooks == nil {
		hooks = noopHookRunner{}
	}
	interval := opts.DefaultInterval
	if interval <= 0 {
		interval = DefaultInterval
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	lockPath := pidPath + ".lock"
	return &Daemon{
		source:          opts.Source,
		probe:           opts.Probe,
		healer:          healer,
		hooks:           hooks,
		logger:          logging.NewComponentLogger(opts.Logger, "lifecycle"),
		pidPath:         pidPath,
		lockPath:        lockPath,
		lock:            flock.New(lockPath),
		defaultInterval: interval,
		now:             now,
		wake:            make(chan struct{}, 1),
		lastFailures:    make(map[string]int),
	}, nil
}

// Start acquires the daemon lock, writes the PID file and runs the monitoring
// loop until Stop is called or ctx is cancelled. A daemon can be started once.
func (d *Daemon) Start(ctx context.Context) error {
	if !d.phase.CompareAndSwap(phaseNotStarted, phaseRunning) {
		return fmt.Errorf("start: %w", ErrAlreadyRunning)
	}

	// A failed start leaves the daemon startable again.
	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o700); err != nil {
		d.phase.Store(phaseNotStarted)
		return fmt.Errorf("create state directory for %s: %w", d.lockPath, err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		d.phase.Store(phaseNotStarted)
		return fmt.Errorf("acquire daemon lock %s: %w", d.lockPath, err)
	}
	if !ok {
		d.phase.Store(phaseNotStarted)
		return fmt.Errorf("lock %s held by another vmfleet daemon: %w", d.lockPath, ErrAlreadyRunning)
	}

	pid := os.Getpid()
	if err := pidfile.Write(d.pidPath, pid); err != nil {
		_ = d.lock.Unlock()
		d.phase.Store(phaseNotStarted)
		return err
	}

	d.mu.Lock()
	d.pid = pid
	d.startedAt = d.now()
	d.mu.Unlock()

	defer d.shutdown()

	d.logger.Info("lifecycle daemon started",
		logging.Int(logging.FieldPID, pid),
		logging.String("pid_file", d.pidPath),
		logging.Duration("default_interval", d.defaultInterval),
	)

	d.loop(ctx)
	return nil
}

// Stop asks the loop to exit after the check in progress, if any. It is safe
// to call from any goroutine and more than once.
func (d *Daemon) Stop() {
	if d.phase.CompareAndSwap(phaseRunning, phaseStopping) {
		d.logger.Info("lifecycle daemon stopping")
	}
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// ReloadConfig acknowledges a reload request. Configuration is fetched from
// the source every pass, so there is nothing to refresh here.
func (d *Daemon) ReloadConfig() {
	d.logger.Info("reload requested; monitoring configuration is re-read every pass",
		logging.String(logging.FieldEventType, "config_reload"),
	)
}

// Status reports the daemon's view of itself. Uptime and PID are only set while
// the loop is running.
func (d *Daemon) Status() DaemonStatus {
	status := DaemonStatus{MonitoredVMs: []string{}}
	if d.phase.Load() != phaseRunning {
		return status
	}
	d.mu.Lock()
	pid, startedAt := d.pid, d.startedAt
	d.mu.Unlock()
	if pid == 0 {
		return status
	}

	status.Running = true
	status.PID = pid
	status.StartedAt = startedAt
	status.Uptime = d.now().Sub(startedAt)
	if vms, err := d.source.ListMonitoredVMs(); err != nil {
		d.logger.Debug("list monitored vms for status failed", logging.Error(err))
	} else if vms != nil {
		status.MonitoredVMs = vms
	}
	return status
}

// PIDFile returns the path the daemon writes its PID to.
func (d *Daemon) PIDFile() string {
	return d.pidPath
}

func (d *Daemon) running() bool {
	return d.phase.Load() == phaseRunning
}

func (d *Daemon) loop(ctx context.Context) {
	keepGoing := func() bool { return d.running() && ctx.Err() == nil }
	for keepGoing() {
		report := d.cycle(ctx, keepGoing)
		if !keepGoing() {
			return
		}
		d.sleep(ctx, report.NextInterval)
	}
}

func (d *Daemon) sleep(ctx context.Context, interval time.Duration) {
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-d.wake:
	case <-timer.C:
	}
}

func (d *Daemon) shutdown() {
	d.phase.Store(phaseStopping)
	if err := pidfile.Remove(d.pidPath); err != nil {
		logging.WarnWithContext(d.logger, "failed to remove pid file", "pid_file_remove_failed",
			logging.String("pid_file", d.pidPath),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "delete the stale pid file manually"),
			logging.String(logging.FieldImpact, "status may report a stale daemon until the file is removed"),
		)
	}
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.String("lock", d.lockPath),
			logging.Error(err),
		)
	}
	d.mu.Lock()
	uptime := d.now().Sub(d.startedAt)
	d.pid = 0
	d.startedAt = time.Time{}
	d.mu.Unlock()
	d.phase.Store(phaseStopped)
	d.logger.Info("lifecycle daemon stopped", logging.Duration("uptime", uptime.Round(time.Second)))
}
