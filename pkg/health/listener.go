package health

import (
	"context"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// DefaultProbeClientID identifies listener probes in the broker log
const DefaultProbeClientID = "backend-health-probe"

// ListenerChecker completes an MQTT handshake against a broker listener.
// It fails when the listener is closed or the account is rejected.
type ListenerChecker struct {
	// Address is host:port of the listener
	Address  string
	ClientID string
	Username string
	Password string
	Timeout  time.Duration
}

// NewListenerChecker creates a probe authenticating as username
func NewListenerChecker(address, username, password string) *ListenerChecker {
	return &ListenerChecker{
		Address:  address,
		ClientID: DefaultProbeClientID,
		Username: username,
		Password: password,
		Timeout:  3 * time.Second,
	}
}

// Check connects, waits for CONNACK and disconnects
func (c *ListenerChecker) Check(ctx context.Context) Result {
	start := time.Now()

	opts := mqtt.NewClientOptions().
		AddBroker("tcp://" + c.Address).
		SetClientID(c.ClientID).
		SetUsername(c.Username).
		SetPassword(c.Password).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(c.Timeout)
	client := mqtt.NewClient(opts)

	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fail(start, "connect to %s: %v", c.Address, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fail(start, "connect to %s: %v", c.Address, err)
	}
	client.Disconnect(0)

	return pass(start, "listener %s accepted %s", c.Address, c.ClientID)
}

// Type returns the check type
func (c *ListenerChecker) Type() CheckType {
	return CheckTypeListener
}

// WithTimeout sets the connect timeout
func (c *ListenerChecker) WithTimeout(timeout time.Duration) *ListenerChecker {
	if timeout > 0 {
		c.Timeout = timeout
	}
	return c
}
