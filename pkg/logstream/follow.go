package logstream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chhayank-20/Mosquitto-Manager/pkg/log"
	"github.com/nxadm/tail"
)

// Follower tails one file by polling. Polling is used instead of inotify
// because the broker log usually lives on a mounted volume where change
// notifications are unreliable.
type Follower struct {
	path string
	t    *tail.Tail
}

// Open starts following path. The start position is fixed when Open
// returns: the beginning of the file if fromStart is set, otherwise its
// current end. A missing file is created empty.
func Open(path string, fromStart bool) (*Follower, error) {
	if err := ensureFile(path); err != nil {
		return nil, err
	}

	var offset int64
	if !fromStart {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		offset = info.Size()
	}

	t, err := tail.TailFile(path, tail.Config{
		Location:  &tail.SeekInfo{Offset: offset, Whence: io.SeekStart},
		ReOpen:    true,
		MustExist: false,
		Poll:      true,
		Follow:    true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to tail %s: %w", path, err)
	}

	return &Follower{path: path, t: t}, nil
}

// Run calls fn for every line until ctx is cancelled or the tail stops
func (f *Follower) Run(ctx context.Context, fn func(line string)) error {
	logger := log.WithComponent("logstream")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-f.t.Lines:
			if !ok {
				return f.t.Err()
			}
			if line.Err != nil {
				logger.Warn().Err(line.Err).Str("path", f.path).Msg("Log tail error")
				continue
			}
			fn(strings.TrimRight(line.Text, "\r"))
		}
	}
}

// Stop ends the tail and releases its resources
func (f *Follower) Stop() error {
	err := f.t.Stop()
	f.t.Cleanup()
	return err
}

// Follow opens path and feeds lines to fn until ctx is cancelled
func Follow(ctx context.Context, path string, fromStart bool, fn func(line string)) error {
	f, err := Open(path, fromStart)
	if err != nil {
		return err
	}
	defer f.Stop()
	return f.Run(ctx, fn)
}

// RecentLines returns up to n trailing lines of path. A missing file
// yields no lines.
func RecentLines(path string, n int) ([]string, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	if n <= 0 {
		return []string{}, nil
	}

	ring := make([]string, 0, n)
	start := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(ring) < n {
			ring = append(ring, scanner.Text())
			continue
		}
		ring[start] = scanner.Text()
		start = (start + 1) % n
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return append(ring[start:], ring[:start]...), nil
}

func ensureFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0660)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	return f.Close()
}
