// Package hooks runs user-configured hook commands through a shell with the
// invocation context exported as environment variables.
package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"vmfleet/internal/lifecycle"
	"vmfleet/internal/logging"
)

const maxOutputLog = 2048

// Runner implements lifecycle.HookRunner.
type Runner struct {
	shell   string
	timeout time.Duration
	logger  *slog.Logger
}

// New constructs a runner. An empty shell defaults to /bin/sh.
func New(shell string, timeout time.Duration, logger *slog.Logger) *Runner {
	if strings.TrimSpace(shell) == "" {
		shell = "/bin/sh"
	}
	return &Runner{
		shell:   shell,
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, "hooks"),
	}
}

// Run executes inv.Command with `<shell> -c` and waits for it to exit or time out.
func (r *Runner) Run(ctx context.Context, inv lifecycle.HookInvocation) error {
	if strings.TrimSpace(inv.Command) == "" {
		return nil
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	env, err := Env(inv)
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, r.shell, "-c", inv.Command)
	cmd.Env = append(os.Environ(), env...)
	cmd.WaitDelay = time.Second

	logger := r.logger.With(logging.VM(inv.VMName), logging.String("hook", inv.Name))
	started := time.Now()
	output, err := cmd.CombinedOutput()
	elapsed := time.Since(started)
	trimmed := truncate(strings.TrimSpace(string(output)))

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("timed out after %s: %w", r.timeout, err)
		}
		return fmt.Errorf("hook %s for %s: %w (output: %q)", inv.Name, inv.VMName, err, trimmed)
	}
	logger.Info("hook finished",
		logging.Duration("elapsed", elapsed.Round(time.Millisecond)),
		logging.String("output", trimmed),
	)
	return nil
}

// Env returns the environment entries describing inv.
func Env(inv lifecycle.HookInvocation) ([]string, error) {
	payload, err := json.Marshal(inv.Context)
	if err != nil {
		return nil, fmt.Errorf("encode hook context: %w", err)
	}
	env := []string{
		"VMFLEET_HOOK=" + inv.Name,
		"VMFLEET_VM=" + inv.VMName,
		"VMFLEET_CONTEXT=" + string(payload),
	}
	keys := make([]string, 0, len(inv.Context))
	for key := range inv.Context {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		env = append(env, "VMFLEET_CTX_"+envKey(key)+"="+inv.Context[key])
	}
	return env, nil
}

func envKey(key string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(key) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// truncate keeps the last maxOutputLog bytes of s, starting on a rune boundary.
func truncate(s string) string {
	if len(s) <= maxOutputLog {
		return s
	}
	start := len(s) - maxOutputLog
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}
