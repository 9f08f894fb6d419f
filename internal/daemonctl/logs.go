package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"vmfleet/internal/logging"
	"vmfleet/internal/logs"
)

// DefaultLogLines is the number of lines ShowLogs returns when none is given.
const DefaultLogLines = 50

// ShowLogs returns the last n lines of the daemon log. It uses tail(1) when
// available and an in-process reader otherwise.
func (c *Controller) ShowLogs(n int) ([]string, error) {
	if err := c.checkLog(); err != nil {
		return nil, err
	}
	if n <= 0 {
		n = DefaultLogLines
	}

	if tailPath, err := exec.LookPath("tail"); err == nil {
		out, err := exec.Command(tailPath, "-n", strconv.Itoa(n), c.logPath).Output()
		if err == nil {
			return splitLines(string(out)), nil
		}
		c.logger.Debug("tail failed; reading log in-process", logging.Error(err))
	}

	lines, _, err := logs.LastLines(c.logPath, n)
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	return lines, nil
}

// FollowLogs emits the last n lines of the daemon log and then every line
// appended to it until ctx is cancelled.
func (c *Controller) FollowLogs(ctx context.Context, n int, emit func(string)) error {
	if err := c.checkLog(); err != nil {
		return err
	}
	if n < 0 {
		n = DefaultLogLines
	}
	lines, offset, err := logs.LastLines(c.logPath, n)
	if err != nil {
		return fmt.Errorf("read log: %w", err)
	}
	for _, line := range lines {
		emit(line)
	}
	return logs.Follow(ctx, c.logPath, offset, logs.DefaultPollInterval, emit)
}

func (c *Controller) checkLog() error {
	if c.logPath == "" {
		return fmt.Errorf("logs: %w (no log file configured)", ErrLogNotFound)
	}
	info, err := os.Stat(c.logPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("logs: %w at %s", ErrLogNotFound, c.logPath)
		}
		return fmt.Errorf("logs: stat %s: %w", c.logPath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("logs: %s is a directory", c.logPath)
	}
	return nil
}

func splitLines(out string) []string {
	out = strings.TrimRight(out, "\n")
	if out == "" {
		return []string{}
	}
	return strings.Split(out, "\n")
}
