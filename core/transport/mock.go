package transport

import (
	"context"
	"fmt"
	"sync"
)

// Call is one recorded interaction with a MockTransport.
type Call struct {
	Op      string // "connect", "subscribe", "publish", "disconnect"
	Topic   string
	Payload []byte
	QoS     QoS
	Retain  bool
}

// MockTransport is an in-memory Transport for tests. Failures are scripted
// per operation and consumed in order.
type MockTransport struct {
	mu sync.Mutex

	connected bool
	Calls     []Call
	Creds     []Credentials
	LastWill  *Will

	ConnectErrs   []error
	SubscribeErrs []error
	PublishErrs   []error

	inbox []Message
}

// NewMockTransport returns a disconnected mock.
func NewMockTransport() *MockTransport { return &MockTransport{} }

func (m *MockTransport) Connect(_ context.Context, creds Credentials, will *Will) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, Call{Op: "connect"})
	m.Creds = append(m.Creds, creds)
	m.LastWill = will
	if len(m.ConnectErrs) > 0 {
		err := m.ConnectErrs[0]
		m.ConnectErrs = m.ConnectErrs[1:]
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
		}
	}
	m.connected = true
	return nil
}

func (m *MockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockTransport) Subscribe(topic string, qos QoS) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, Call{Op: "subscribe", Topic: topic, QoS: qos})
	if len(m.SubscribeErrs) > 0 {
		err := m.SubscribeErrs[0]
		m.SubscribeErrs = m.SubscribeErrs[1:]
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSubscribeFailed, err)
		}
	}
	return nil
}

func (m *MockTransport) Publish(topic string, payload []byte, qos QoS, retain bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, Call{Op: "publish", Topic: topic, Payload: payload, QoS: qos, Retain: retain})
	if !m.connected {
		return ErrNotConnected
	}
	if len(m.PublishErrs) > 0 {
		err := m.PublishErrs[0]
		m.PublishErrs = m.PublishErrs[1:]
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPublishFailed, err)
		}
	}
	return nil
}

func (m *MockTransport) Drain(fn func(Message)) int {
	m.mu.Lock()
	inbox := m.inbox
	m.inbox = nil
	m.mu.Unlock()
	for _, msg := range inbox {
		fn(msg)
	}
	return len(inbox)
}

func (m *MockTransport) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, Call{Op: "disconnect"})
	m.connected = false
}

// Deliver queues an inbound frame for the next Drain.
func (m *MockTransport) Deliver(topic string, payload []byte) {
	m.mu.Lock()
	m.inbox = append(m.inbox, Message{Topic: topic, Payload: payload})
	m.mu.Unlock()
}

// Drop simulates a broker-side disconnect detected by the liveness check.
func (m *MockTransport) Drop() {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
}

// Published returns the publish calls made on topic.
func (m *MockTransport) Published(topic string) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Call
	for _, c := range m.Calls {
		if c.Op == "publish" && c.Topic == topic {
			out = append(out, c)
		}
	}
	return out
}

// Ops returns the operation names in call order.
func (m *MockTransport) Ops() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Calls))
	for i, c := range m.Calls {
		out[i] = c.Op
	}
	return out
}

// Reset forgets recorded calls but keeps the connection state.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	m.Calls = nil
	m.mu.Unlock()
}
