package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"
)

// DefaultPollInterval is how often Follow checks the file for new data.
const DefaultPollInterval = 250 * time.Millisecond

// LastLines returns up to n trailing complete lines of path and the offset just
// past the last newline read, which callers pass to Follow so a trailing
// partial line is emitted once, whole. A missing file returns fs.ErrNotExist.
func LastLines(path string, n int) ([]string, int64, error) {
	file, err := openLog(path)
	if err != nil {
		return nil, 0, err
	}
	defer file.Close()

	var ring []string
	if n > 0 {
		ring = make([]string, n)
	}
	next, count := 0, 0
	var offset int64
	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, 0, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		if n <= 0 {
			continue
		}
		ring[next] = strings.TrimRight(line, "\r\n")
		next = (next + 1) % n
		if count < n {
			count++
		}
	}

	lines := make([]string, count)
	start := 0
	if count == n {
		start = next
	}
	for i := range lines {
		lines[i] = ring[(start+i)%n]
	}
	return lines, offset, nil
}

// ReadFrom returns the complete lines written after offset and the offset
// just past the last of them. A trailing partial line is left for the next
// call. When the file has shrunk below offset reading restarts at zero.
func ReadFrom(path string, offset int64) ([]string, int64, error) {
	file, err := openLog(path)
	if err != nil {
		return nil, offset, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, offset, fmt.Errorf("stat log file: %w", err)
	}
	if offset < 0 || info.Size() < offset {
		offset = 0
	}
	if info.Size() == offset {
		return nil, offset, nil
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReader(file)
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return lines, offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		lines = append(lines, strings.TrimRight(line, "\r\n"))
	}
	return lines, offset, nil
}

// Follow polls path from offset, calling emit for every new complete line,
// until ctx is done. A file that disappears is waited for rather than
// treated as an error so rotation does not end the stream.
func Follow(ctx context.Context, path string, offset int64, interval time.Duration, emit func(string)) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		lines, next, err := ReadFrom(path, offset)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			next = 0
		case err != nil:
			return err
		}
		for _, line := range lines {
			emit(line)
		}
		offset = next

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func openLog(path string) (*os.File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		file.Close()
		return nil, fmt.Errorf("log path %q is a directory", path)
	}
	return file, nil
}
