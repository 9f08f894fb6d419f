package preflight

import (
	"path/filepath"

	"vmfleet/internal/config"
	"vmfleet/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// RunAll executes every preflight check for the given config.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	for _, status := range CheckSystemDeps(cfg) {
		results = append(results, fromStatus(status))
	}

	dirs := []struct{ name, path string }{
		{"State directory", filepath.Dir(cfg.Daemon.StateDB)},
		{"Log directory", filepath.Dir(cfg.Daemon.LogFile)},
	}
	seen := map[string]bool{}
	for _, dir := range dirs {
		if seen[dir.path] {
			continue
		}
		seen[dir.path] = true
		results = append(results, CheckDirectoryAccess(dir.name, dir.path))
	}
	return results
}

// Failed returns the results that did not pass and are not optional.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, r)
		}
	}
	return failed
}

func fromStatus(status deps.Status) Result {
	detail := status.Detail
	if status.Available {
		detail = status.Path
	}
	return Result{
		Name:     status.Name,
		Passed:   status.Available,
		Optional: status.Optional,
		Detail:   detail,
	}
}
