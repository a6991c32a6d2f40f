package stats

import (
	"net"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freeAddress(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func startBroker(t *testing.T, addr string) *mochi.Server {
	t.Helper()
	server := mochi.New(&mochi.Options{SysTopicResendInterval: 1})
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))
	require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{ID: "internal", Address: addr})))
	require.NoError(t, server.Serve())
	return server
}

func testMonitorConfig(addr string) MonitorConfig {
	cfg := DefaultMonitorConfig(addr, "sys_monitor", "secret")
	cfg.ConnectTimeout = 2 * time.Second
	cfg.RetryInterval = 100 * time.Millisecond
	cfg.MaxRetryInterval = 500 * time.Millisecond
	return cfg
}

func TestMonitorReceivesBrokerMetrics(t *testing.T) {
	addr := freeAddress(t)
	server := startBroker(t, addr)
	defer server.Close()

	pub := &recordingPublisher{}
	agg := NewAggregator(pub)
	mon := NewMonitor(testMonitorConfig(addr), agg)
	mon.Start()
	defer mon.Stop()

	require.Eventually(t, mon.Connected, 5*time.Second, 50*time.Millisecond)
	require.Eventually(t, func() bool {
		return agg.Snapshot().ClientsActive >= 1
	}, 10*time.Second, 100*time.Millisecond)
	assert.Positive(t, pub.count())
}

func TestMonitorConnectsWhenBrokerStartsLate(t *testing.T) {
	addr := freeAddress(t)

	agg := NewAggregator(nil)
	mon := NewMonitor(testMonitorConfig(addr), agg)
	mon.Start()
	defer mon.Stop()

	time.Sleep(300 * time.Millisecond)
	assert.False(t, mon.Connected())

	server := startBroker(t, addr)
	defer server.Close()

	require.Eventually(t, mon.Connected, 10*time.Second, 50*time.Millisecond)
}
