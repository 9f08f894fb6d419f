// Package pidfile reads and writes the daemon PID file.
//
// The file holds a decimal process ID followed by a newline. Writes go through
// a temp file in the same directory and a rename, so readers never observe a
// partially written value. Liveness checks use a zero signal, which tests for
// existence without affecting the target process.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// ErrInvalid indicates the PID file exists but does not hold a usable PID.
var ErrInvalid = errors.New("invalid pid file")

// Info describes the PID file and the process it names.
type Info struct {
	PID     int
	ModTime time.Time
	Alive   bool
}

// Write atomically records pid at path with owner-only permissions.
func Write(path string, pid int) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("pid file path is empty")
	}
	if pid <= 0 {
		return fmt.Errorf("pid must be positive, got %d", pid)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create pid directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp pid file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("chmod temp pid file: %w", err)
	}
	if _, err := tmp.WriteString(strconv.Itoa(pid) + "\n"); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp pid file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp pid file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp pid file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("rename pid file: %w", err)
	}
	return nil
}

// Read returns the PID recorded at path.
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	value := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(value)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalid, value)
	}
	return pid, nil
}

// Inspect reads the PID file and probes the recorded process. A missing file
// returns an error satisfying errors.Is(err, os.ErrNotExist).
func Inspect(path string) (Info, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Info{}, err
	}
	pid, err := Read(path)
	if err != nil {
		return Info{ModTime: info.ModTime()}, err
	}
	return Info{PID: pid, ModTime: info.ModTime(), Alive: Alive(pid)}, nil
}

// Remove deletes the PID file. A missing file is not an error.
func Remove(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove pid file %q: %w", path, err)
	}
	return nil
}

// Alive reports whether a process with pid exists. EPERM means the process
// exists but belongs to another user.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
