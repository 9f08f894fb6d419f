package logs_test

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"vmfleet/internal/logs"
)

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vmfleet.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func appendLog(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("append log: %v", err)
	}
}

func TestLastLines(t *testing.T) {
	content := "a\nb\nc\n"
	path := writeLog(t, content)

	lines, size, err := logs.LastLines(path, 2)
	if err != nil {
		t.Fatalf("LastLines: %v", err)
	}
	if !slices.Equal(lines, []string{"b", "c"}) {
		t.Fatalf("unexpected lines: %#v", lines)
	}
	if size != int64(len(content)) {
		t.Fatalf("size = %d, want %d", size, len(content))
	}
}

func TestLastLinesShortFile(t *testing.T) {
	path := writeLog(t, "only\n")

	lines, _, err := logs.LastLines(path, 50)
	if err != nil {
		t.Fatalf("LastLines: %v", err)
	}
	if !slices.Equal(lines, []string{"only"}) {
		t.Fatalf("unexpected lines: %#v", lines)
	}
}

func TestLastLinesMissingFile(t *testing.T) {
	_, _, err := logs.LastLines(filepath.Join(t.TempDir(), "absent.log"), 10)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestLastLinesLeavesPartialLineForFollow(t *testing.T) {
	path := writeLog(t, "one\ntwo-partial")

	lines, offset, err := logs.LastLines(path, 10)
	if err != nil {
		t.Fatalf("LastLines: %v", err)
	}
	if !slices.Equal(lines, []string{"one"}) || offset != 4 {
		t.Fatalf("lines=%#v offset=%d", lines, offset)
	}

	appendLog(t, path, "-done\nthree\n")
	rest, _, err := logs.ReadFrom(path, offset)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if !slices.Equal(rest, []string{"two-partial-done", "three"}) {
		t.Fatalf("continued lines = %#v", rest)
	}
}

func TestLastLinesZeroReturnsOffsetOnly(t *testing.T) {
	path := writeLog(t, "a\nb\npart")

	lines, offset, err := logs.LastLines(path, 0)
	if err != nil {
		t.Fatalf("LastLines: %v", err)
	}
	if len(lines) != 0 || offset != 4 {
		t.Fatalf("lines=%#v offset=%d", lines, offset)
	}
}

func TestReadFromHoldsPartialLine(t *testing.T) {
	path := writeLog(t, "one\ntw")

	lines, offset, err := logs.ReadFrom(path, 0)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if !slices.Equal(lines, []string{"one"}) || offset != 4 {
		t.Fatalf("lines=%#v offset=%d", lines, offset)
	}

	appendLog(t, path, "o\n")
	lines, offset, err = logs.ReadFrom(path, offset)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if !slices.Equal(lines, []string{"two"}) || offset != 8 {
		t.Fatalf("lines=%#v offset=%d", lines, offset)
	}
}

func TestReadFromRestartsAfterTruncation(t *testing.T) {
	path := writeLog(t, "fresh\n")

	lines, _, err := logs.ReadFrom(path, 500)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if !slices.Equal(lines, []string{"fresh"}) {
		t.Fatalf("unexpected lines: %#v", lines)
	}
}

func TestFollowEmitsAppendedLines(t *testing.T) {
	path := writeLog(t, "start\n")
	_, offset, err := logs.LastLines(path, 1)
	if err != nil {
		t.Fatalf("LastLines: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var (
		mu  sync.Mutex
		got []string
	)
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, offset, 20*time.Millisecond, func(line string) {
			mu.Lock()
			got = append(got, line)
			mu.Unlock()
		})
	}()

	appendLog(t, path, "later\n")

	deadline := time.Now().Add(5 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Follow returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Follow did not return after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	if !slices.Equal(got, []string{"later"}) {
		t.Fatalf("unexpected follow lines: %#v", got)
	}
}
