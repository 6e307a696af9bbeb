// Package amqp carries the farm topic protocol over a RabbitMQ topic
// exchange. Topics map to routing keys by replacing "/" with ".", so
// farm/D/command is routed as farm.D.command; MQTT wildcards + and # become
// * and #. Device ids must therefore not contain dots.
//
// AMQP has neither retained messages nor a last will. Retained publishes are
// delivered like any other message and the offline will is not registered.
package amqp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kilianp07/farmbridge/core/transport"
	"github.com/kilianp07/farmbridge/infra/logger"
)

const (
	exchangeTypeTopic = "topic"
	durable           = true
	deleteWhenUnused  = false
	internal          = false
	exclusive         = true
	noWait            = false
	noLocal           = false
	consumerTag       = ""
	contentType       = "application/json"
)

type connection interface {
	IsClosed() bool
	Close() error
}

type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

var dial = func(url string, cfg amqp.Config) (connection, channel, error) {
	conn, err := amqp.DialConfig(url, cfg)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

// Transport implements transport.Transport over amqp091-go. Deliveries are
// consumed on a goroutine per subscription and queued for Drain.
type Transport struct {
	cfg Config
	log logger.Logger

	mu   sync.Mutex
	conn connection
	ch   channel

	inbox   chan transport.Message
	dropped atomic.Uint64
}

var _ transport.Transport = (*Transport)(nil)

// NewTransport returns a disconnected transport.
func NewTransport(cfg Config) *Transport {
	cfg.SetDefaults()
	return &Transport{
		cfg:   cfg,
		log:   logger.New("amqp_transport"),
		inbox: make(chan transport.Message, cfg.InboundBuffer),
	}
}

// Connect dials the broker and declares the farm exchange. The will is
// ignored.
func (t *Transport) Connect(ctx context.Context, creds transport.Credentials, _ *transport.Will) error {
	timeout := t.cfg.operationTimeout()
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if timeout <= 0 {
		return fmt.Errorf("%w: %v", transport.ErrTransportUnavailable, context.DeadlineExceeded)
	}
	cfg := amqp.Config{
		Dial:       amqp.DefaultDial(timeout),
		Properties: amqp.NewConnectionProperties(),
	}
	cfg.Properties.SetClientConnectionName(creds.ClientID)
	if creds.Username != "" {
		cfg.SASL = []amqp.Authentication{&amqp.PlainAuth{Username: creds.Username, Password: creds.Password}}
	}
	conn, ch, err := dial(t.cfg.URL, cfg)
	if err != nil {
		return fmt.Errorf("%w: %v", transport.ErrTransportUnavailable, err)
	}
	if err := ch.ExchangeDeclare(t.cfg.Exchange, exchangeTypeTopic, durable, deleteWhenUnused, internal, noWait, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("%w: declare exchange %s: %v", transport.ErrTransportUnavailable, t.cfg.Exchange, err)
	}
	t.mu.Lock()
	oldConn, oldCh := t.conn, t.ch
	t.conn, t.ch = conn, ch
	t.mu.Unlock()
	closeQuietly(oldConn, oldCh)
	t.log.Infof("AMQP connected to exchange %s as %s", t.cfg.Exchange, creds.ClientID)
	return nil
}

func (t *Transport) session() (connection, channel) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn, t.ch
}

func (t *Transport) IsConnected() bool {
	conn, _ := t.session()
	return conn != nil && !conn.IsClosed()
}

// Subscribe binds a server-named exclusive queue to the topic. At-least-once
// subscriptions acknowledge each delivery once it is queued for Drain.
func (t *Transport) Subscribe(topic string, qos transport.QoS) error {
	conn, ch := t.session()
	if conn == nil || conn.IsClosed() {
		return fmt.Errorf("%w: not connected", transport.ErrSubscribeFailed)
	}
	q, err := ch.QueueDeclare("", !durable, true, exclusive, noWait, nil)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", transport.ErrSubscribeFailed, topic, err)
	}
	key := TopicToKey(topic)
	if err := ch.QueueBind(q.Name, key, t.cfg.Exchange, noWait, nil); err != nil {
		return fmt.Errorf("%w: %s: %v", transport.ErrSubscribeFailed, topic, err)
	}
	autoAck := qos == transport.AtMostOnce
	deliveries, err := ch.Consume(q.Name, consumerTag, autoAck, exclusive, noLocal, noWait, nil)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", transport.ErrSubscribeFailed, topic, err)
	}
	go t.consume(deliveries, autoAck)
	t.log.Debugf("bound %s to %s", q.Name, key)
	return nil
}

func (t *Transport) consume(deliveries <-chan amqp.Delivery, autoAck bool) {
	for d := range deliveries {
		m := transport.Message{Topic: KeyToTopic(d.RoutingKey), Payload: d.Body, Received: time.Now()}
		select {
		case t.inbox <- m:
			if !autoAck {
				_ = d.Ack(false)
			}
		default:
			n := t.dropped.Add(1)
			t.log.Warnf("inbound buffer full, dropped frame on %s (%d dropped)", m.Topic, n)
			if !autoAck {
				_ = d.Nack(false, true)
			}
		}
	}
}

// Publish sends payload on the exchange. retain has no AMQP equivalent.
func (t *Transport) Publish(topic string, payload []byte, qos transport.QoS, _ bool) error {
	conn, ch := t.session()
	if conn == nil || conn.IsClosed() {
		return transport.ErrNotConnected
	}
	mode := amqp.Transient
	if qos >= transport.AtLeastOnce {
		mode = amqp.Persistent
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.operationTimeout())
	defer cancel()
	err := ch.PublishWithContext(ctx, t.cfg.Exchange, TopicToKey(topic), false, false, amqp.Publishing{
		ContentType:  contentType,
		DeliveryMode: mode,
		Timestamp:    time.Now(),
		Body:         payload,
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", transport.ErrPublishFailed, topic, err)
	}
	return nil
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

func (t *Transport) Disconnect() {
	t.mu.Lock()
	conn, ch := t.conn, t.ch
	t.conn, t.ch = nil, nil
	t.mu.Unlock()
	closeQuietly(conn, ch)
}

func closeQuietly(conn connection, ch channel) {
	if ch != nil {
		_ = ch.Close()
	}
	if conn != nil && !conn.IsClosed() {
		_ = conn.Close()
	}
}

// TopicToKey converts an MQTT-style topic or filter to an AMQP routing key.
func TopicToKey(topic string) string {
	parts := strings.Split(topic, "/")
	for i, p := range parts {
		if p == "+" {
			parts[i] = "*"
		}
	}
	return strings.Join(parts, ".")
}

// KeyToTopic is the inverse of TopicToKey for concrete routing keys.
func KeyToTopic(key string) string {
	return strings.ReplaceAll(key, ".", "/")
}
