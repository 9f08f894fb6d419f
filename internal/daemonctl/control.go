package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"vmfleet/internal/lifecycle"
	"vmfleet/internal/logging"
	"vmfleet/internal/pidfile"
)

const (
	// DefaultStartupTimeout bounds how long a background start waits.
	DefaultStartupTimeout = 10 * time.Second
	// DefaultStopTimeout is the SIGTERM grace period when none is given.
	DefaultStopTimeout = 30 * time.Second

	startPollInterval = 200 * time.Millisecond
	stopPollInterval  = 100 * time.Millisecond
	killConfirmWait   = 10 * time.Second
	restartPause      = time.Second
)

// RunFunc runs the daemon in the calling process and returns after shutdown.
type RunFunc func(ctx context.Context) error

// Options configures a Controller. PIDFile is required.
type Options struct {
	PIDFile string
	LogFile string
	Source  lifecycle.ConfigSource

	// Executable and Args launch the detached daemon. Executable defaults to
	// the running binary.
	Executable string
	Args       []string
	// Run is used for foreground starts.
	Run RunFunc

	StartupTimeout time.Duration
	StopTimeout    time.Duration
	Logger         *slog.Logger
	Now            func() time.Time
}

// StopResult captures the outcome of Stop.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// RestartResult captures the outcome of Restart.
type RestartResult struct {
	WasRunning bool
	Stop       StopResult
	PID        int
}

// Controller starts, stops and inspects the daemon through its PID file.
type Controller struct {
	pidPath        string
	logPath        string
	source         lifecycle.ConfigSource
	executable     string
	args           []string
	run            RunFunc
	startupTimeout time.Duration
	stopTimeout    time.Duration
	logger         *slog.Logger
	now            func() time.Time
	pause          time.Duration
}

// New constructs a Controller.
func New(opts Options) (*Controller, error) {
	pidPath := strings.TrimSpace(opts.PIDFile)
	if pidPath == "" {
		return nil, errors.New("daemon controller requires a pid file path")
	}
	startup := opts.StartupTimeout
	if startup <= 0 {
		startup = DefaultStartupTimeout
	}
	stop := opts.StopTimeout
	if stop <= 0 {
		stop = DefaultStopTimeout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		pidPath:        pidPath,
		logPath:        strings.TrimSpace(opts.LogFile),
		source:         opts.Source,
		executable:     strings.TrimSpace(opts.Executable),
		args:           append([]string(nil), opts.Args...),
		run:            opts.Run,
		startupTimeout: startup,
		stopTimeout:    stop,
		logger:         logging.NewComponentLogger(opts.Logger, "daemonctl"),
		now:            now,
		pause:          restartPause,
	}, nil
}

// PIDFile returns the PID file path the controller watches.
func (c *Controller) PIDFile() string { return c.pidPath }

// LogFile returns the daemon log path.
func (c *Controller) LogFile() string { return c.logPath }

// IsRunning reports whether the PID file names a live process. A PID file
// naming a dead process, or holding garbage, is removed. A file that cannot
// be read is left alone.
func (c *Controller) IsRunning() (bool, int) {
	pid, err := pidfile.Read(c.pidPath)
	switch {
	case err == nil:
	case errors.Is(err, pidfile.ErrInvalid):
		c.removeStale(0, err)
		return false, 0
	case errors.Is(err, fs.ErrNotExist):
		return false, 0
	default:
		logging.WarnWithContext(c.logger, "pid file unreadable", "pid_file_unreadable",
			logging.String("pid_file", c.pidPath),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the pid file's permissions"),
		)
		return false, 0
	}
	if !pidfile.Alive(pid) {
		c.removeStale(pid, nil)
		return false, 0
	}
	return true, pid
}

func (c *Controller) removeStale(pid int, cause error) {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "stale_pid_file_removed"),
		logging.String("pid_file", c.pidPath),
	}
	if pid > 0 {
		attrs = append(attrs, logging.Int(logging.FieldPID, pid))
	}
	if cause != nil {
		attrs = append(attrs, logging.Error(cause))
	}
	if err := pidfile.Remove(c.pidPath); err != nil {
		c.logger.Warn("stale pid file could not be removed", logging.Args(append(attrs, logging.Error(err))...)...)
		return
	}
	c.logger.Debug("stale pid file removed", logging.Args(attrs...)...)
}

// Start launches the daemon. In the foreground it runs in this process and
// blocks until shutdown; otherwise it spawns a detached process and waits for
// it to record a live PID.
func (c *Controller) Start(ctx context.Context, foreground bool) error {
	if running, pid := c.IsRunning(); running {
		return fmt.Errorf("start: %w (pid %d)", ErrAlreadyRunning, pid)
	}
	if foreground {
		if c.run == nil {
			return errors.New("start: no foreground runner configured")
		}
		return c.run(ctx)
	}
	_, err := c.spawn(ctx)
	return err
}

func (c *Controller) spawn(ctx context.Context) (int, error) {
	exe := c.executable
	if exe == "" {
		self, err := os.Executable()
		if err != nil {
			return 0, fmt.Errorf("%w: resolve executable: %v", ErrFailedToStart, err)
		}
		exe = self
	}

	stderr, err := c.openStderr()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFailedToStart, err)
	}
	defer stderr.Close()

	cmd := exec.Command(exe, c.args...)
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFailedToStart, err)
	}
	child := cmd.Process.Pid
	c.logger.Debug("daemon process spawned",
		logging.String(logging.FieldEventType, "daemon_spawned"),
		logging.Int(logging.FieldPID, child),
		logging.String("executable", exe),
	)

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	deadline := time.NewTimer(c.startupTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(startPollInterval)
	defer ticker.Stop()

	for {
		if running, pid := c.IsRunning(); running {
			return pid, nil
		}
		select {
		case err := <-exited:
			if err == nil {
				err = errors.New("exit status 0")
			}
			return 0, fmt.Errorf("%w: process %d exited before recording its pid (%v); see %s", ErrFailedToStart, child, err, c.logHint())
		case <-ctx.Done():
			_ = cmd.Process.Kill()
			return 0, ctx.Err()
		case <-deadline.C:
			_ = cmd.Process.Kill()
			return 0, fmt.Errorf("%w: no live pid recorded within %s; see %s", ErrFailedToStart, c.startupTimeout, c.logHint())
		case <-ticker.C:
		}
	}
}

// openStderr returns the sink for the detached process's stderr so crashes
// before logger setup still land in the log file.
func (c *Controller) openStderr() (*os.File, error) {
	if c.logPath == "" {
		return os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	}
	if err := os.MkdirAll(filepath.Dir(c.logPath), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	return os.OpenFile(c.logPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
}

func (c *Controller) logHint() string {
	if c.logPath == "" {
		return "daemon logs"
	}
	return c.logPath
}

// Stop sends SIGTERM to the recorded daemon and waits up to timeout for it to
// exit, escalating to SIGKILL afterwards. It returns once the process is gone.
func (c *Controller) Stop(timeout time.Duration) (StopResult, error) {
	running, pid := c.IsRunning()
	if !running {
		return StopResult{}, fmt.Errorf("stop: %w", ErrNotRunning)
	}
	if pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("stop: refusing to signal current process (pid %d)", pid)
	}
	if timeout <= 0 {
		timeout = c.stopTimeout
	}
	result := StopResult{PID: pid}

	if err := unix.Kill(pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		return result, fmt.Errorf("stop: signal pid %d: %w", pid, err)
	}
	if waitExit(pid, timeout) {
		c.cleanupAfter(pid)
		return result, nil
	}

	logging.WarnWithContext(c.logger, "daemon ignored SIGTERM; sending SIGKILL", "daemon_force_kill",
		logging.String(logging.FieldErrorHint, "inspect the daemon log for a stuck check"),
		logging.Int(logging.FieldPID, pid),
		logging.Duration("grace", timeout),
	)
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return result, fmt.Errorf("stop: kill pid %d: %w", pid, err)
	}
	result.ForcedKill = true
	if !waitExit(pid, killConfirmWait) {
		return result, fmt.Errorf("stop: pid %d still alive %s after SIGKILL", pid, killConfirmWait)
	}
	c.cleanupAfter(pid)
	return result, nil
}

func waitExit(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if !pidfile.Alive(pid) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(stopPollInterval)
	}
}

// cleanupAfter removes a PID file the dead daemon left behind, unless it has
// already been replaced by a different process.
func (c *Controller) cleanupAfter(pid int) {
	current, err := pidfile.Read(c.pidPath)
	if err == nil && current != pid {
		return
	}
	if err := pidfile.Remove(c.pidPath); err != nil {
		logging.WarnWithContext(c.logger, "pid file cleanup failed", "pid_file_cleanup_failed",
			logging.String(logging.FieldErrorHint, "remove the pid file manually"),
			logging.Error(err),
		)
	}
}

// Restart stops the daemon when it is running, pauses briefly, then starts it
// in the background.
func (c *Controller) Restart(ctx context.Context) (RestartResult, error) {
	var result RestartResult
	stop, err := c.Stop(c.stopTimeout)
	switch {
	case err == nil:
		result.WasRunning = true
		result.Stop = stop
	case errors.Is(err, ErrNotRunning):
	default:
		return result, fmt.Errorf("restart: %w", err)
	}

	select {
	case <-ctx.Done():
		return result, ctx.Err()
	case <-time.After(c.pause):
	}

	if running, pid := c.IsRunning(); running {
		return result, fmt.Errorf("restart: %w (pid %d)", ErrAlreadyRunning, pid)
	}
	pid, err := c.spawn(ctx)
	if err != nil {
		return result, fmt.Errorf("restart: %w", err)
	}
	result.PID = pid
	return result, nil
}

// Status reports the daemon as seen through its PID file. It never fails;
// anything unreadable is reported as not running.
func (c *Controller) Status() lifecycle.DaemonStatus {
	status := lifecycle.DaemonStatus{MonitoredVMs: []string{}}
	running, pid := c.IsRunning()
	if !running {
		return status
	}
	info, err := pidfile.Inspect(c.pidPath)
	if err != nil || info.PID != pid {
		return status
	}

	status.Running = true
	status.PID = pid
	status.StartedAt = info.ModTime
	if uptime := c.now().Sub(info.ModTime); uptime > 0 {
		status.Uptime = uptime
	}
	if c.source != nil {
		if vms, err := c.source.ListMonitoredVMs(); err == nil && vms != nil {
			status.MonitoredVMs = vms
		} else if err != nil {
			c.logger.Debug("monitored vm list unavailable", logging.Error(err))
		}
	}
	return status
}
