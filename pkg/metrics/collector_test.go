package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/chhayank-20/Mosquitto-Manager/pkg/health"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	typ     health.CheckType
	healthy bool
}

func (s *stubChecker) Check(ctx context.Context) health.Result {
	return health.Result{Healthy: s.healthy, Message: "stub", CheckedAt: time.Now()}
}

func (s *stubChecker) Type() health.CheckType { return s.typ }

type stubSubscribers int

func (s stubSubscribers) SubscriberCount() int { return int(s) }

func TestCollectorCollect(t *testing.T) {
	resetHealth()

	process := &stubChecker{typ: health.CheckTypeProcess, healthy: true}
	listener := &stubChecker{typ: health.CheckTypeListener, healthy: false}

	c := NewCollector(health.Config{Retries: 1, Timeout: time.Second}, stubSubscribers(3),
		Check{Component: ComponentBroker, Checker: process},
		Check{Component: ComponentStats, Checker: listener},
	)
	c.Collect(context.Background())

	broker, ok := GetComponent(ComponentBroker)
	require.True(t, ok)
	assert.True(t, broker.Healthy)
	assert.Equal(t, 1.0, testutil.ToFloat64(BrokerUp))
	assert.Equal(t, 3.0, testutil.ToFloat64(PushSubscribers))

	stats, ok := GetComponent(ComponentStats)
	require.True(t, ok)
	assert.False(t, stats.Healthy)
	assert.Equal(t, 0.0, testutil.ToFloat64(ComponentUp.WithLabelValues(ComponentStats)))

	process.healthy = false
	c.Collect(context.Background())
	broker, _ = GetComponent(ComponentBroker)
	assert.False(t, broker.Healthy)
	assert.Equal(t, 0.0, testutil.ToFloat64(BrokerUp))
}

func TestCollectorRetries(t *testing.T) {
	resetHealth()

	process := &stubChecker{typ: health.CheckTypeProcess, healthy: false}
	c := NewCollector(health.Config{Retries: 3}, nil, Check{Component: ComponentBroker, Checker: process})

	c.Collect(context.Background())
	c.Collect(context.Background())
	broker, _ := GetComponent(ComponentBroker)
	assert.True(t, broker.Healthy, "below retry threshold")

	c.Collect(context.Background())
	broker, _ = GetComponent(ComponentBroker)
	assert.False(t, broker.Healthy)
}

func TestCollectorStartStop(t *testing.T) {
	resetHealth()

	c := NewCollector(health.Config{Interval: 10 * time.Millisecond, Retries: 1}, nil,
		Check{Component: ComponentTools, Checker: &stubChecker{typ: health.CheckTypeTool, healthy: true}})
	c.Start()
	defer c.Stop()

	assert.Eventually(t, func() bool {
		_, ok := GetComponent(ComponentTools)
		return ok
	}, time.Second, 10*time.Millisecond)

	c.Stop()
}
