package logging_test

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vmfleet/internal/logging"
)

func newFileLogger(t *testing.T, opts logging.Options) (*slog.Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logs", "daemon.log")
	opts.OutputPaths = []string{path}
	logger, err := logging.New(opts)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return logger, path
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(data)
}

func TestConsoleLoggerPromotesComponentAndVM(t *testing.T) {
	logger, path := newFileLogger(t, logging.Options{Format: "console", Level: "info"})

	logging.NewComponentLogger(logger, "lifecycle").Info("vm healthy", logging.VM("dev-box"), logging.Int("ssh_failures", 0))

	out := readLog(t, path)
	if !strings.Contains(out, " INFO lifecycle [dev-box]: vm healthy") {
		t.Fatalf("expected component/vm prefix, got %q", out)
	}
	if !strings.Contains(out, "ssh_failures=0") {
		t.Fatalf("expected trailing attribute, got %q", out)
	}
	if strings.Contains(out, ".go:") {
		t.Fatalf("expected no source location at info level, got %q", out)
	}
}

func TestConsoleLoggerIncludesSourceForDebug(t *testing.T) {
	logger, path := newFileLogger(t, logging.Options{Format: "console", Level: "debug"})
	logger.Debug("probe detail")

	if out := readLog(t, path); !strings.Contains(out, "logger_test.go:") {
		t.Fatalf("expected source location in debug logs, got %q", out)
	}
}

func TestConsoleLoggerQuotesValues(t *testing.T) {
	logger, path := newFileLogger(t, logging.Options{Format: "console"})
	logger.Info("hook failed", logging.String("command", "notify --vm dev"), logging.String("empty", ""))

	out := readLog(t, path)
	if !strings.Contains(out, `command="notify --vm dev"`) || !strings.Contains(out, `empty=""`) {
		t.Fatalf("expected quoted values, got %q", out)
	}
}

func TestJSONLoggerFields(t *testing.T) {
	logger, path := newFileLogger(t, logging.Options{Format: "json", SessionID: "abc"})
	logger.Warn("probe failed", logging.VM("dev-box"))

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(readLog(t, path))), &entry); err != nil {
		t.Fatalf("decode json line: %v", err)
	}
	if entry["level"] != "warn" {
		t.Fatalf("level = %v, want warn", entry["level"])
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts field, got %v", entry)
	}
	if entry["vm"] != "dev-box" || entry[logging.FieldSessionID] != "abc" {
		t.Fatalf("unexpected fields: %v", entry)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"fatal":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for input, want := range cases {
		if got := logging.ParseLevel(input); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
	if logging.ValidLevel("bogus") {
		t.Error("expected bogus to be invalid")
	}
}

func TestWarnWithContextFillsDefaults(t *testing.T) {
	logger, path := newFileLogger(t, logging.Options{Format: "json"})
	logging.WarnWithContext(logger, "hook failed", "hook_failed", logging.String(logging.FieldErrorHint, "check hook command"))

	out := readLog(t, path)
	for _, want := range []string{`"event_type":"hook_failed"`, `"error_hint":"check hook command"`, `"impact":`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %s", want, out)
		}
	}
	if strings.Count(out, `"error_hint"`) != 1 {
		t.Errorf("caller-provided error_hint should not be duplicated: %s", out)
	}
}

func TestNilLoggerHelpers(t *testing.T) {
	logging.WarnWithContext(nil, "ignored", "noop")
	logging.ErrorWithContext(nil, "ignored", "noop")
	logging.NewComponentLogger(nil, "x").Info("discarded")
}
