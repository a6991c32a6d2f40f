package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/chhayank-20/Mosquitto-Manager/pkg/health"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/log"
)

// Check binds a health checker to the component it reports on
type Check struct {
	Component string
	Checker   health.Checker
}

// SubscriberCounter reports the number of live push subscribers
type SubscriberCounter interface {
	SubscriberCount() int
}

// Collector periodically runs health checks and samples gauges that are
// not updated inline
type Collector struct {
	checks      []Check
	config      health.Config
	subscribers SubscriberCounter

	mu       sync.Mutex
	statuses map[string]*health.Status

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCollector creates a new metrics collector
func NewCollector(config health.Config, subscribers SubscriberCounter, checks ...Check) *Collector {
	statuses := make(map[string]*health.Status, len(checks))
	for _, c := range checks {
		statuses[c.Component] = health.NewStatus(config)
	}
	return &Collector{
		checks:      checks,
		config:      config,
		subscribers: subscribers,
		statuses:    statuses,
		stopCh:      make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	interval := c.config.Interval
	if interval <= 0 {
		interval = health.DefaultConfig().Interval
	}
	ticker := time.NewTicker(interval)
	go func() {
		// Collect immediately on start
		c.Collect(context.Background())

		for {
			select {
			case <-ticker.C:
				c.Collect(context.Background())
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Collect runs every check once and publishes the results
func (c *Collector) Collect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, check := range c.checks {
		checkCtx, cancel := context.WithTimeout(ctx, c.timeout())
		result := check.Checker.Check(checkCtx)
		cancel()

		status := c.statuses[check.Component]
		if status.Observe(result) {
			log.WithComponent("collector").Info().
				Str("check", check.Component).
				Bool("healthy", status.Healthy()).
				Str("message", result.Message).
				Msg("Component health changed")
		}
		UpdateComponent(check.Component, status.Healthy(), result.Message)

		if check.Checker.Type() == health.CheckTypeProcess {
			BrokerUp.Set(boolGauge(result.Healthy))
		}

		if !result.Healthy {
			log.WithComponent("collector").Debug().
				Str("check", check.Component).
				Str("message", result.Message).
				Msg("Health check failed")
		}
	}

	if c.subscribers != nil {
		PushSubscribers.Set(float64(c.subscribers.SubscriberCount()))
	}
}

func (c *Collector) timeout() time.Duration {
	if c.config.Timeout > 0 {
		return c.config.Timeout
	}
	return health.DefaultConfig().Timeout
}

