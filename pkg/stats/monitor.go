package stats

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/chhayank-20/Mosquitto-Manager/pkg/log"
	"github.com/chhayank-20/Mosquitto-Manager/pkg/metrics"
)

const (
	// DefaultClientID identifies the monitor in broker logs
	DefaultClientID = "backend-stats-monitor"

	// SubscriptionFilter covers every broker metric topic
	SubscriptionFilter = "$SYS/#"
)

// MonitorConfig holds the connection settings for the metric subscription
type MonitorConfig struct {
	// Address is host:port of the broker's loopback listener
	Address  string
	ClientID string
	Username string
	Password string

	ConnectTimeout    time.Duration
	RetryInterval     time.Duration
	MaxRetryInterval  time.Duration
	DisconnectQuiesce time.Duration
}

// DefaultMonitorConfig returns settings for the internal listener
func DefaultMonitorConfig(address, username, password string) MonitorConfig {
	return MonitorConfig{
		Address:           address,
		ClientID:          DefaultClientID,
		Username:          username,
		Password:          password,
		ConnectTimeout:    5 * time.Second,
		RetryInterval:     2 * time.Second,
		MaxRetryInterval:  30 * time.Second,
		DisconnectQuiesce: 250 * time.Millisecond,
	}
}

// Monitor subscribes to the broker's metric topics and feeds an Aggregator.
// The broker is restarted by every apply, so the connection retries forever
// and resubscribes on each reconnect.
type Monitor struct {
	config     MonitorConfig
	aggregator *Aggregator
	client     mqtt.Client
}

// NewMonitor creates a monitor; call Start to connect
func NewMonitor(config MonitorConfig, agg *Aggregator) *Monitor {
	m := &Monitor{config: config, aggregator: agg}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", config.Address))
	opts.SetClientID(config.ClientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(config.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(config.RetryInterval)
	opts.SetMaxReconnectInterval(config.MaxRetryInterval)
	opts.SetOnConnectHandler(m.onConnect)
	opts.SetConnectionLostHandler(m.onConnectionLost)

	m.client = mqtt.NewClient(opts)
	return m
}

// Start begins connecting in the background. It does not wait for the
// broker to become reachable.
func (m *Monitor) Start() {
	log.WithComponent("stats").Info().
		Str("address", m.config.Address).
		Str("client_id", m.config.ClientID).
		Msg("Connecting to broker metrics")
	m.client.Connect()
}

// Stop disconnects from the broker
func (m *Monitor) Stop() {
	m.client.Disconnect(uint(m.config.DisconnectQuiesce / time.Millisecond))
	metrics.StatsConnected.Set(0)
	metrics.UpdateComponent(metrics.ComponentStats, false, "stopped")
}

// Connected reports whether the subscription connection is up
func (m *Monitor) Connected() bool {
	return m.client.IsConnectionOpen()
}

func (m *Monitor) onConnect(c mqtt.Client) {
	logger := log.WithComponent("stats")

	token := c.Subscribe(SubscriptionFilter, 0, func(_ mqtt.Client, msg mqtt.Message) {
		m.aggregator.Update(msg.Topic(), msg.Payload())
	})
	if token.WaitTimeout(m.config.ConnectTimeout) && token.Error() != nil {
		logger.Error().Err(token.Error()).Msg("Failed to subscribe to broker metrics")
		metrics.UpdateComponent(metrics.ComponentStats, false, token.Error().Error())
		return
	}

	metrics.StatsConnected.Set(1)
	metrics.UpdateComponent(metrics.ComponentStats, true, "subscribed")
	logger.Info().Str("filter", SubscriptionFilter).Msg("Subscribed to broker metrics")
}

func (m *Monitor) onConnectionLost(_ mqtt.Client, err error) {
	metrics.StatsConnected.Set(0)
	metrics.UpdateComponent(metrics.ComponentStats, false, err.Error())
	log.WithComponent("stats").Warn().Err(err).Msg("Lost broker metrics connection")
}
