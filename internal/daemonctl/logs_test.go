package daemonctl

import (
	"context"
	"errors"
	"os"
	"slices"
	"sync"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestShowLogsMissingFile(t *testing.T) {
	c, _ := newController(t, nil)
	if _, err := c.ShowLogs(10); !errors.Is(err, ErrLogNotFound) {
		t.Fatalf("expected ErrLogNotFound, got %v", err)
	}
}

func TestShowLogsWithTail(t *testing.T) {
	c, _ := newController(t, nil)
	writeFile(t, c.LogFile(), "one\ntwo\nthree\n")

	lines, err := c.ShowLogs(2)
	if err != nil {
		t.Fatalf("ShowLogs: %v", err)
	}
	if !slices.Equal(lines, []string{"two", "three"}) {
		t.Fatalf("unexpected lines %#v", lines)
	}
}

func TestShowLogsFallsBackWithoutTail(t *testing.T) {
	c, _ := newController(t, nil)
	writeFile(t, c.LogFile(), "one\ntwo\nthree\n")
	t.Setenv("PATH", t.TempDir())

	lines, err := c.ShowLogs(2)
	if err != nil {
		t.Fatalf("ShowLogs: %v", err)
	}
	if !slices.Equal(lines, []string{"two", "three"}) {
		t.Fatalf("unexpected lines %#v", lines)
	}
}

func TestFollowLogs(t *testing.T) {
	c, _ := newController(t, nil)
	writeFile(t, c.LogFile(), "old-1\nold-2\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu  sync.Mutex
		got []string
	)
	done := make(chan error, 1)
	go func() {
		done <- c.FollowLogs(ctx, 1, func(line string) {
			mu.Lock()
			got = append(got, line)
			mu.Unlock()
		})
	}()

	deadline := time.Now().Add(5 * time.Second)
	appended := false
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n == 1 && !appended {
			f, err := os.OpenFile(c.LogFile(), os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				t.Fatalf("open log: %v", err)
			}
			_, _ = f.WriteString("new\n")
			_ = f.Close()
			appended = true
		}
		if n == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("FollowLogs: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !slices.Equal(got, []string{"old-2", "new"}) {
		t.Fatalf("unexpected followed lines %#v", got)
	}
}
