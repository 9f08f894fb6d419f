package logstream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// filterScanLines bounds how much history is read when filters narrow the
// initial tail.
const filterScanLines = 5000

// Source is the daemon log as exposed by the controller.
type Source interface {
	ShowLogs(lines int) ([]string, error)
	FollowLogs(ctx context.Context, lines int, emit func(string)) error
}

// Filters contains optional predicates applied to each log line.
type Filters struct {
	VM     string
	Level  string
	Search string
}

func (f Filters) empty() bool {
	return strings.TrimSpace(f.VM) == "" &&
		strings.TrimSpace(f.Level) == "" &&
		strings.TrimSpace(f.Search) == ""
}

// Validate rejects an unknown minimum level.
func (f Filters) Validate() error {
	if level := strings.TrimSpace(f.Level); level != "" && levelRank(level) < 0 {
		return fmt.Errorf("unsupported log level %q (want debug, info, warn or error)", f.Level)
	}
	return nil
}

// Options controls stream behavior.
type Options struct {
	Lines   int
	Follow  bool
	Filters Filters
}

// Stream emits the last opts.Lines matching lines, then every matching
// appended line while following. It returns true when at least one line was
// emitted.
func Stream(ctx context.Context, src Source, opts Options, onLine func(string)) (bool, error) {
	if err := opts.Filters.Validate(); err != nil {
		return false, err
	}
	printed := false
	emit := func(line string) {
		if !opts.Filters.Match(line) {
			return
		}
		if onLine != nil {
			onLine(line)
		}
		printed = true
	}

	if opts.Filters.empty() {
		if opts.Follow {
			return printed, src.FollowLogs(ctx, opts.Lines, emit)
		}
		lines, err := src.ShowLogs(opts.Lines)
		for _, line := range lines {
			emit(line)
		}
		return printed, err
	}

	history, err := src.ShowLogs(filterScanLines)
	if err != nil {
		return false, err
	}
	for _, line := range lastMatching(history, opts.Filters, opts.Lines) {
		emit(line)
	}
	if !opts.Follow {
		return printed, nil
	}
	return printed, src.FollowLogs(ctx, 0, emit)
}

func lastMatching(lines []string, f Filters, n int) []string {
	if n <= 0 {
		return nil
	}
	var matched []string
	for _, line := range lines {
		if f.Match(line) {
			matched = append(matched, line)
		}
	}
	if len(matched) > n {
		matched = matched[len(matched)-n:]
	}
	return matched
}

// Match reports whether line passes every set filter. Lines written by either
// the console or the JSON handler are understood.
func (f Filters) Match(line string) bool {
	if f.empty() {
		return true
	}
	entry := parseLine(line)
	if vm := strings.TrimSpace(f.VM); vm != "" && entry.vm != vm {
		return false
	}
	if level := strings.TrimSpace(f.Level); level != "" {
		if entry.level == "" || levelRank(entry.level) < levelRank(level) {
			return false
		}
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		if !strings.Contains(strings.ToLower(line), strings.ToLower(search)) {
			return false
		}
	}
	return true
}

type lineEntry struct {
	level string
	vm    string
}

func parseLine(line string) lineEntry {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "{") {
		var payload struct {
			Level string `json:"level"`
			VM    string `json:"vm"`
		}
		if json.Unmarshal([]byte(trimmed), &payload) == nil {
			return lineEntry{level: strings.ToLower(payload.Level), vm: payload.VM}
		}
		return lineEntry{}
	}

	// <ts> <LEVEL> [component] [\[vm\]]: message key=value...
	fields := strings.SplitN(trimmed, " ", 3)
	if len(fields) < 2 {
		return lineEntry{}
	}
	entry := lineEntry{level: strings.ToLower(fields[1])}
	if levelRank(entry.level) < 0 {
		return lineEntry{}
	}
	if len(fields) == 3 {
		head, _, found := strings.Cut(fields[2], ": ")
		if found {
			if open := strings.LastIndexByte(head, '['); open >= 0 && strings.HasSuffix(head, "]") {
				entry.vm = head[open+1 : len(head)-1]
			}
		}
	}
	return entry
}

func levelRank(level string) int {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return 0
	case "info":
		return 1
	case "warn", "warning":
		return 2
	case "error":
		return 3
	default:
		return -1
	}
}
