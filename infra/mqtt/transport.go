package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/farmbridge/core/transport"
	"github.com/kilianp07/farmbridge/infra/logger"
)

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Transport implements transport.Transport over Eclipse Paho. Paho delivers
// messages on its own goroutines; they are queued and handed to the bridge
// by Drain.
type Transport struct {
	cfg Config
	log logger.Logger

	mu  sync.Mutex
	cli pahoClient

	inbox   chan transport.Message
	dropped atomic.Uint64
}

var _ transport.Transport = (*Transport)(nil)

// NewTransport returns a disconnected transport.
func NewTransport(cfg Config) *Transport {
	return &Transport{
		cfg:   cfg,
		log:   logger.New("mqtt"),
		inbox: make(chan transport.Message, cfg.inboundBuffer()),
	}
}

func (t *Transport) client() pahoClient {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cli
}

// Connect makes a single connection attempt bounded by ctx.
func (t *Transport) Connect(ctx context.Context, creds transport.Credentials, will *transport.Will) error {
	opts, err := NewClientOptions(t.cfg, creds, will)
	if err != nil {
		return fmt.Errorf("%w: %v", transport.ErrTransportUnavailable, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts.SetConnectTimeout(time.Until(deadline))
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		t.log.Errorf("connection lost: %v", err)
	}
	c := newMQTTClient(opts)
	if err := waitToken(ctx, c.Connect()); err != nil {
		c.Disconnect(0)
		return fmt.Errorf("%w: %v", transport.ErrTransportUnavailable, err)
	}
	t.mu.Lock()
	old := t.cli
	t.cli = c
	t.mu.Unlock()
	if old != nil && old != c && old.IsConnected() {
		old.Disconnect(0)
	}
	t.log.Infof("MQTT connected to %s as %s", t.cfg.Broker, creds.ClientID)
	return nil
}

// IsConnected reports the paho client's own view of the connection. With
// automatic reconnection disabled it turns false once the keep-alive check
// fails.
func (t *Transport) IsConnected() bool {
	c := t.client()
	return c != nil && c.IsConnected()
}

func (t *Transport) Subscribe(topic string, qos transport.QoS) error {
	c := t.client()
	if c == nil || !c.IsConnected() {
		return fmt.Errorf("%w: not connected", transport.ErrSubscribeFailed)
	}
	tok := c.Subscribe(topic, byte(qos), t.onMessage)
	if err := waitTimeout(tok, t.cfg.operationTimeout()); err != nil {
		return fmt.Errorf("%w: %s: %v", transport.ErrSubscribeFailed, topic, err)
	}
	t.log.Debugf("subscribed to %s", topic)
	return nil
}

func (t *Transport) Publish(topic string, payload []byte, qos transport.QoS, retain bool) error {
	c := t.client()
	if c == nil || !c.IsConnected() {
		return transport.ErrNotConnected
	}
	tok := c.Publish(topic, byte(qos), retain, payload)
	if err := waitTimeout(tok, t.cfg.operationTimeout()); err != nil {
		return fmt.Errorf("%w: %s: %v", transport.ErrPublishFailed, topic, err)
	}
	return nil
}

func (t *Transport) onMessage(_ paho.Client, msg paho.Message) {
	payload := append([]byte(nil), msg.Payload()...)
	m := transport.Message{Topic: msg.Topic(), Payload: payload, Received: time.Now()}
	select {
	case t.inbox <- m:
	default:
		n := t.dropped.Add(1)
		t.log.Warnf("inbound buffer full, dropped frame on %s (%d dropped)", m.Topic, n)
	}
}

// Drain delivers the frames queued so far on the caller's goroutine.
func (t *Transport) Drain(fn func(transport.Message)) int {
	n := 0
	for {
		select {
		case m := <-t.inbox:
			fn(m)
			n++
		default:
			return n
		}
	}
}

// Dropped returns the number of frames discarded because the inbound buffer
// was full.
func (t *Transport) Dropped() uint64 { return t.dropped.Load() }

// Disconnect gracefully closes the MQTT connection.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	c := t.cli
	t.cli = nil
	t.mu.Unlock()
	if c != nil && c.IsConnected() {
		c.Disconnect(defaultDisconnectQuiesce)
	}
}

func waitToken(ctx context.Context, tok paho.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func waitTimeout(tok paho.Token, d time.Duration) error {
	if !tok.WaitTimeout(d) {
		return fmt.Errorf("no acknowledgment within %s", d)
	}
	return tok.Error()
}
