package logstream

import (
	"context"

	"github.com/chhayank-20/Mosquitto-Manager/pkg/events"
)

// Streamer pushes every broker log line, from the start of the file, as a
// logs event.
type Streamer struct {
	Path      string
	Publisher events.Publisher
}

// NewStreamer creates a streamer for path
func NewStreamer(path string, pub events.Publisher) *Streamer {
	return &Streamer{Path: path, Publisher: pub}
}

// Run streams until ctx is cancelled
func (s *Streamer) Run(ctx context.Context) error {
	return Follow(ctx, s.Path, true, func(line string) {
		s.Publisher.Publish(&events.Event{Type: events.EventLogs, Payload: line})
	})
}
