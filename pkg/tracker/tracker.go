package tracker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chhayank-20/Mosquitto-Manager/pkg/events"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/log"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/logstream"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/metrics"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/types"
)

// Tracker reconstructs the set of connected broker clients from the broker
// log. It is the only writer of its session map; readers get copies.
type Tracker struct {
	logPath   string
	publisher events.Publisher
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]types.ClientSession
}

// New creates a tracker for the broker log at logPath. Snapshots are
// published to pub, which may be nil.
func New(logPath string, pub events.Publisher) *Tracker {
	return &Tracker{
		logPath:   logPath,
		publisher: pub,
		now:       time.Now,
		sessions:  make(map[string]types.ClientSession),
	}
}

// Apply classifies one log line and performs the resulting transition.
// It reports whether the session set changed.
func (t *Tracker) Apply(raw string) bool {
	line := Classify(raw)
	metrics.LogLinesTotal.WithLabelValues(line.Shape.String()).Inc()

	var snapshot []types.ClientSession

	t.mu.Lock()
	switch line.Shape {
	case ShapeConnect:
		t.sessions[line.ClientID] = types.ClientSession{
			ID:          line.ClientID,
			IP:          line.Address,
			Username:    line.Username,
			ConnectedAt: t.now(),
		}
	case ShapeDisconnect:
		if _, ok := t.sessions[line.ClientID]; !ok {
			t.mu.Unlock()
			return false
		}
		delete(t.sessions, line.ClientID)
	default:
		t.mu.Unlock()
		return false
	}
	snapshot = t.snapshotLocked()
	t.mu.Unlock()

	log.WithClientID(line.ClientID).Debug().
		Str("shape", line.Shape.String()).
		Int("sessions", len(snapshot)).
		Msg("Session set changed")

	metrics.SessionsConnected.Set(float64(len(snapshot)))
	if t.publisher != nil {
		t.publisher.Publish(&events.Event{Type: events.EventClients, Payload: snapshot})
	}
	return true
}

// Sessions returns a copy of the current sessions ordered by connect time,
// then client id
func (t *Tracker) Sessions() []types.ClientSession {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshotLocked()
}

// Reset forgets every session
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.sessions = make(map[string]types.ClientSession)
	t.mu.Unlock()
	metrics.SessionsConnected.Set(0)
}

func (t *Tracker) snapshotLocked() []types.ClientSession {
	out := make([]types.ClientSession, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ConnectedAt.Before(out[j].ConnectedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Start resets the session set and begins following the log from its
// current end. Lines already in the file are never replayed, so sessions
// that ended without a disconnect line (a killed broker) are not
// resurrected. Start returns once the start position is fixed; tracking
// continues until ctx is cancelled.
func (t *Tracker) Start(ctx context.Context) error {
	t.Reset()

	f, err := logstream.Open(t.logPath, false)
	if err != nil {
		metrics.UpdateComponent(metrics.ComponentTracker, false, err.Error())
		return err
	}
	metrics.UpdateComponent(metrics.ComponentTracker, true, "following "+t.logPath)

	go func() {
		defer f.Stop()
		if err := f.Run(ctx, func(line string) { t.Apply(line) }); err != nil {
			log.WithComponent("tracker").Error().Err(err).Msg("Log tail stopped")
			metrics.UpdateComponent(metrics.ComponentTracker, false, err.Error())
		}
	}()

	log.WithComponent("tracker").Info().Str("log", t.logPath).Msg("Tracking client sessions")
	return nil
}

// Run is Start followed by waiting for ctx to be cancelled
func (t *Tracker) Run(ctx context.Context) error {
	if err := t.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}
