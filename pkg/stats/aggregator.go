package stats

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/chhayank-20/Mosquitto-Manager/pkg/events"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/metrics"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/types"
)

// TopicPrefix is the broker's metric namespace
const TopicPrefix = "$SYS/broker/"

// field binds one metric topic suffix to a snapshot field
type field struct {
	suffix string
	metric string
	value  func(s *types.BrokerStats) *float64
}

var fields = []field{
	{"uptime", "uptime", func(s *types.BrokerStats) *float64 { return &s.Uptime }},
	{"clients/total", "clients_total", func(s *types.BrokerStats) *float64 { return &s.ClientsTotal }},
	{"clients/active", "clients_active", func(s *types.BrokerStats) *float64 { return &s.ClientsActive }},
	// newer brokers publish clients/connected in place of clients/active
	{"clients/connected", "clients_active", func(s *types.BrokerStats) *float64 { return &s.ClientsActive }},
	{"messages/sent", "messages_sent", func(s *types.BrokerStats) *float64 { return &s.MessagesSent }},
	{"messages/received", "messages_received", func(s *types.BrokerStats) *float64 { return &s.MessagesReceived }},
	{"load/messages/received/1min", "load_messages_received_1min", func(s *types.BrokerStats) *float64 { return &s.LoadMessagesReceived1Min }},
	{"load/messages/sent/1min", "load_messages_sent_1min", func(s *types.BrokerStats) *float64 { return &s.LoadMessagesSent1Min }},
	{"bytes/received", "bytes_received", func(s *types.BrokerStats) *float64 { return &s.BytesReceived }},
	{"bytes/sent", "bytes_sent", func(s *types.BrokerStats) *float64 { return &s.BytesSent }},
	{"subscriptions/count", "subscriptions", func(s *types.BrokerStats) *float64 { return &s.Subscriptions }},
	{"retained messages/count", "retained_messages", func(s *types.BrokerStats) *float64 { return &s.RetainedMessages }},
}

func lookup(suffix string) (field, bool) {
	for _, f := range fields {
		if f.suffix == suffix {
			return f, true
		}
	}
	return field{}, false
}

var leadingNumber = regexp.MustCompile(`^\s*[-+]?(\d+(\.\d*)?|\.\d+)([eE][-+]?\d+)?`)

// Aggregator keeps the latest value of every tracked broker metric
type Aggregator struct {
	publisher events.Publisher

	mu    sync.RWMutex
	stats types.BrokerStats
}

// NewAggregator creates an aggregator publishing snapshots to pub, which
// may be nil
func NewAggregator(pub events.Publisher) *Aggregator {
	return &Aggregator{publisher: pub}
}

// Update applies one metric message. It reports whether the topic was a
// tracked metric with a numeric payload; anything else is dropped.
func (a *Aggregator) Update(topic string, payload []byte) bool {
	if !strings.HasPrefix(topic, TopicPrefix) {
		return false
	}
	f, ok := lookup(strings.TrimPrefix(topic, TopicPrefix))
	if !ok {
		return false
	}
	v, ok := parseLeadingNumber(string(payload))
	if !ok {
		return false
	}

	a.mu.Lock()
	*f.value(&a.stats) = v
	snapshot := a.stats
	a.mu.Unlock()

	metrics.BrokerStat.WithLabelValues(f.metric).Set(v)
	if a.publisher != nil {
		a.publisher.Publish(&events.Event{Type: events.EventStats, Payload: snapshot})
	}
	return true
}

// Snapshot returns a copy of the current values
func (a *Aggregator) Snapshot() types.BrokerStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stats
}

// parseLeadingNumber reads the number at the start of s, so "42 seconds"
// yields 42
func parseLeadingNumber(s string) (float64, bool) {
	m := leadingNumber.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(m), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
