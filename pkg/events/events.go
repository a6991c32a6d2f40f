package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// EventType names what an event's payload holds
type EventType string

const (
	// EventClients carries the full []types.ClientSession snapshot
	EventClients EventType = "clients"
	// EventStats carries the full types.BrokerStats snapshot
	EventStats EventType = "stats"
	// EventLogs carries one broker log line
	EventLogs EventType = "logs"
	// EventApplied carries the reconciler result after a pipeline run
	EventApplied EventType = "applied"
)

// Snapshot reports whether events of type t replace the previous one
// rather than add to a stream
func (t EventType) Snapshot() bool {
	return t != EventLogs
}

const (
	queueSize      = 256
	subscriberSize = 64

	// pending snapshots are retried at least this often
	retryInterval = time.Second
)

// Event is one push notification
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// Publisher accepts events from the live views
type Publisher interface {
	Publish(event *Event)
}

// Subscriber receives events in publish order
type Subscriber chan *Event

// subscription is the set of types a subscriber asked for; empty means all
type subscription map[EventType]struct{}

func (s subscription) wants(t EventType) bool {
	if len(s) == 0 {
		return true
	}
	_, ok := s[t]
	return ok
}

type subscriber struct {
	filter subscription

	// pending snapshots did not fit the channel and are sent before the
	// next delivery that does
	pending map[EventType]struct{}
}

// Broker fans published events out to subscribers and remembers the last
// snapshot of each type. Log lines go through a bounded queue. Snapshots
// bypass it: publishing marks the type dirty and the loop sends the latest
// value, so a burst of log lines cannot push a snapshot out.
type Broker struct {
	mu     sync.RWMutex
	subs   map[Subscriber]*subscriber
	latest map[EventType]*Event
	dirty  map[EventType]struct{}

	queue    chan *Event
	kick     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	dropped  atomic.Uint64
}

// NewBroker returns a broker that distributes nothing until Start
func NewBroker() *Broker {
	return &Broker{
		subs:   make(map[Subscriber]*subscriber),
		latest: make(map[EventType]*Event),
		dirty:  make(map[EventType]struct{}),
		queue:  make(chan *Event, queueSize),
		kick:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Start launches the distribution loop
func (b *Broker) Start() {
	go b.loop()
}

// Stop ends distribution. Safe to call more than once.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.done) })
}

// Subscribe registers a subscriber for the given types, or for every type
// when none are given
func (b *Broker) Subscribe(types ...EventType) Subscriber {
	filter := make(subscription, len(types))
	for _, t := range types {
		filter[t] = struct{}{}
	}

	sub := make(Subscriber, subscriberSize)
	b.mu.Lock()
	b.subs[sub] = &subscriber{filter: filter, pending: make(map[EventType]struct{})}
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes sub and closes its channel
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub)
}

// Publish stamps the event and hands it to the distribution loop without
// blocking. Log lines that do not fit the queue are counted in Dropped.
func (b *Broker) Publish(event *Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if event.Type.Snapshot() {
		b.mu.Lock()
		b.latest[event.Type] = event
		b.dirty[event.Type] = struct{}{}
		b.mu.Unlock()

		select {
		case b.kick <- struct{}{}:
		default:
		}
		return
	}

	select {
	case <-b.done:
	case b.queue <- event:
	default:
		b.dropped.Add(1)
	}
}

// Latest returns the most recent snapshot of type t, or nil
func (b *Broker) Latest(t EventType) *Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.latest[t]
}

// SubscriberCount returns the number of registered subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many log line deliveries were skipped because a
// queue was full
func (b *Broker) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *Broker) loop() {
	retry := time.NewTicker(retryInterval)
	defer retry.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-retry.C:
			b.flushSnapshots()
		case <-b.kick:
			b.flushSnapshots()
		case event := <-b.queue:
			// snapshots published before this line go first
			select {
			case <-b.kick:
				b.flushSnapshots()
			default:
			}
			b.deliver(event)
		}
	}
}

// flushSnapshots marks every dirty type pending on the subscribers that
// want it and sends what fits
func (b *Broker) flushSnapshots() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for t := range b.dirty {
		for _, s := range b.subs {
			if s.filter.wants(t) {
				s.pending[t] = struct{}{}
			}
		}
		delete(b.dirty, t)
	}
	for ch, s := range b.subs {
		b.sendPending(ch, s)
	}
}

// sendPending reports whether every pending snapshot was sent
func (b *Broker) sendPending(ch Subscriber, s *subscriber) bool {
	for t := range s.pending {
		select {
		case ch <- b.latest[t]:
			delete(s.pending, t)
		default:
			return false
		}
	}
	return true
}

func (b *Broker) deliver(event *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch, s := range b.subs {
		flushed := b.sendPending(ch, s)
		if !s.filter.wants(event.Type) {
			continue
		}
		if !flushed {
			b.dropped.Add(1)
			continue
		}
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}
