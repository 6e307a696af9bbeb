package mqtt

import (
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

type subscription struct {
	topic   string
	qos     byte
	handler paho.MessageHandler
}

type publication struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// mockClient implements pahoClient for tests
type mockClient struct {
	mu          sync.Mutex
	opts        *paho.ClientOptions
	connected   bool
	connectErr  error
	connectHang bool
	subscribed  []subscription
	published   []publication
	publishErrs []error
	subHang     bool
	disconnects int
}

func (m *mockClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockClient) Connect() paho.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connectHang {
		return &pendingToken{done: make(chan struct{})}
	}
	if m.connectErr != nil {
		return &dummyToken{err: m.connectErr}
	}
	m.connected = true
	return &dummyToken{}
}

func (m *mockClient) Disconnect(uint) {
	m.mu.Lock()
	m.connected = false
	m.disconnects++
	m.mu.Unlock()
}

func (m *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, _ := payload.([]byte)
	m.published = append(m.published, publication{topic, qos, retained, b})
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		return &dummyToken{err: err}
	}
	return &dummyToken{}
}

func (m *mockClient) Subscribe(topic string, qos byte, h paho.MessageHandler) paho.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribed = append(m.subscribed, subscription{topic, qos, h})
	if m.subHang {
		return &pendingToken{done: make(chan struct{})}
	}
	return &dummyToken{}
}

// deliver invokes the handler of the first subscription matching topic
// exactly or, failing that, the most recent one.
func (m *mockClient) deliver(topic string, payload []byte) {
	m.mu.Lock()
	var h paho.MessageHandler
	for _, s := range m.subscribed {
		if s.topic == topic {
			h = s.handler
			break
		}
	}
	if h == nil && len(m.subscribed) > 0 {
		h = m.subscribed[len(m.subscribed)-1].handler
	}
	m.mu.Unlock()
	h(nil, mockMessage{topic: topic, p: payload})
}

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Error() error                   { return d.err }

func (d dummyToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// pendingToken never completes.
type pendingToken struct{ done chan struct{} }

func (p *pendingToken) Wait() bool                     { return false }
func (p *pendingToken) WaitTimeout(time.Duration) bool { return false }
func (p *pendingToken) Done() <-chan struct{}          { return p.done }
func (p *pendingToken) Error() error                   { return nil }

type mockMessage struct {
	topic string
	p     []byte
}

func (m mockMessage) Duplicate() bool   { return false }
func (m mockMessage) Qos() byte         { return 0 }
func (m mockMessage) Retained() bool    { return false }
func (m mockMessage) Topic() string     { return m.topic }
func (m mockMessage) MessageID() uint16 { return 0 }
func (m mockMessage) Payload() []byte   { return m.p }
func (m mockMessage) Ack()              {}

func useMock(mc *mockClient) func() {
	newMQTTClient = func(o *paho.ClientOptions) pahoClient {
		mc.mu.Lock()
		mc.opts = o
		mc.mu.Unlock()
		return mc
	}
	return func() {
		newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) }
	}
}
