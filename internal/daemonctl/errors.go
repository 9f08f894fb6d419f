package daemonctl

import "errors"

var (
	// ErrAlreadyRunning indicates the PID file names a live process.
	ErrAlreadyRunning = errors.New("daemon already running")
	// ErrNotRunning indicates no live daemon is recorded.
	ErrNotRunning = errors.New("daemon not running")
	// ErrFailedToStart indicates a spawned daemon never recorded a live PID.
	ErrFailedToStart = errors.New("daemon failed to start")
	// ErrLogNotFound indicates the daemon log file does not exist.
	ErrLogNotFound = errors.New("log file not found")
)
