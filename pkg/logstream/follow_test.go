package logstream

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/chhayank-20/Mosquitto-Manager/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu    sync.Mutex
	lines []string
}

func (c *collector) add(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}

func (c *collector) get() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func appendLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	require.NoError(t, err)
	defer f.Close()
	for _, l := range lines {
		_, err := fmt.Fprintln(f, l)
		require.NoError(t, err)
	}
}

func TestFollowFromEndSkipsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mosquitto.log")
	appendLines(t, path, "old line 1", "old line 2")

	f, err := Open(path, false)
	require.NoError(t, err)
	defer f.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &collector{}
	go f.Run(ctx, c.add)

	appendLines(t, path, "new line 1", "new line 2")

	require.Eventually(t, func() bool { return len(c.get()) == 2 }, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, []string{"new line 1", "new line 2"}, c.get())
}

func TestFollowFromStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mosquitto.log")
	appendLines(t, path, "a", "b")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &collector{}
	done := make(chan error, 1)
	go func() { done <- Follow(ctx, path, true, c.add) }()

	require.Eventually(t, func() bool { return len(c.get()) == 2 }, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, c.get())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Follow did not return after cancel")
	}
}

func TestOpenCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "mosquitto.log")

	f, err := Open(path, false)
	require.NoError(t, err)
	defer f.Stop()

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestRecentLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mosquitto.log")
	for i := 1; i <= 10; i++ {
		appendLines(t, path, fmt.Sprintf("line %d", i))
	}

	tests := []struct {
		name string
		n    int
		want []string
	}{
		{"last three", 3, []string{"line 8", "line 9", "line 10"}},
		{"more than available", 50, []string{"line 1", "line 2", "line 3", "line 4", "line 5", "line 6", "line 7", "line 8", "line 9", "line 10"}},
		{"zero", 0, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RecentLines(path, tt.n)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecentLinesMissingFile(t *testing.T) {
	got, err := RecentLines(filepath.Join(t.TempDir(), "none.log"), 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

type recordingPublisher struct {
	collector
}

func (p *recordingPublisher) Publish(ev *events.Event) {
	p.add(fmt.Sprintf("%s:%v", ev.Type, ev.Payload))
}

func TestStreamerPublishesLogEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mosquitto.log")
	appendLines(t, path, "broker starting")

	pub := &recordingPublisher{}
	s := NewStreamer(path, pub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	require.Eventually(t, func() bool { return len(pub.get()) == 1 }, 5*time.Second, 50*time.Millisecond)

	appendLines(t, path, "client connected")
	require.Eventually(t, func() bool { return len(pub.get()) == 2 }, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, []string{"logs:broker starting", "logs:client connected"}, pub.get())
}
