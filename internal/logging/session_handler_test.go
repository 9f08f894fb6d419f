package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestSessionIDHandlerStampsRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newSessionIDHandler(slog.NewJSONHandler(&buf, nil), "run-123")).With("extra", "value")
	logger.Info("daemon started")

	out := buf.String()
	if !strings.Contains(out, `"session_id":"run-123"`) {
		t.Errorf("expected session_id in output, got: %s", out)
	}
	if !strings.Contains(out, `"extra":"value"`) {
		t.Errorf("expected extra attr in output, got: %s", out)
	}
}

func TestSessionIDHandlerNilBase(t *testing.T) {
	if _, ok := newSessionIDHandler(nil, "run-123").(NoopHandler); !ok {
		t.Fatal("expected NoopHandler when base is nil")
	}
}
