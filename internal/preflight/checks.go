package preflight

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"

	"vmfleet/internal/config"
	"vmfleet/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the binaries the daemon and CLI shell out to.
// Both the daemon start snapshot and the status command use this list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:    "Cloud CLI",
			Command: cfg.Cloud.CLI,
			Purpose: "Required for power state and remediation",
		},
		{
			Name:    "Hook shell",
			Command: cfg.Hooks.Shell,
			Purpose: "Required to run on_failure/on_healthy hooks",
		},
		{
			Name:     "tail",
			Command:  "tail",
			Purpose:  "Used by vmfleet logs; an in-process reader is the fallback",
			Optional: true,
		},
	}
	return deps.CheckBinaries(requirements)
}
