// Package transport defines the publish/subscribe connection the bridge
// drives. Adapters for concrete brokers live in infra/mqtt and infra/amqp.
package transport

import (
	"context"
	"time"
)

// QoS is the delivery guarantee requested for a publish or subscription.
type QoS byte

const (
	AtMostOnce  QoS = 0
	AtLeastOnce QoS = 1
)

// Credentials authenticate the device with the broker. The device id is also
// used as the client identifier and username and the secret is sent as the
// password. This is a simplification, not a security design; brokers relying
// on it should at least enforce TLS.
type Credentials struct {
	ClientID string
	Username string
	Password string
}

// Will is the message the broker publishes on the device's behalf when the
// connection drops without a clean disconnect.
type Will struct {
	Topic   string
	Payload []byte
	QoS     QoS
	Retain  bool
}

// Message is one inbound frame.
type Message struct {
	Topic    string
	Payload  []byte
	Received time.Time
}

// Transport is a single broker connection. It is owned and mutated only by
// the bridge's connection state machine.
//
// Implementations buffer inbound frames internally; Drain hands them to the
// caller on the caller's goroutine so that message handling happens inside
// the scheduler tick.
type Transport interface {
	// Connect makes one connection attempt bounded by ctx. It returns an
	// error wrapping ErrTransportUnavailable on failure.
	Connect(ctx context.Context, creds Credentials, will *Will) error
	// IsConnected is the transport's own liveness check.
	IsConnected() bool
	// Subscribe registers topic for inbound delivery. Subscriptions do not
	// survive a disconnect.
	Subscribe(topic string, qos QoS) error
	Publish(topic string, payload []byte, qos QoS, retain bool) error
	// Drain calls fn for every frame buffered since the previous call and
	// returns how many were delivered.
	Drain(fn func(Message)) int
	Disconnect()
}
