package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/kilianp07/farmbridge/core/logger"
	"github.com/kilianp07/farmbridge/core/metrics"
	"github.com/kilianp07/farmbridge/core/transport"
)

// ConnectionConfig parameterizes a Connection.
type ConnectionConfig struct {
	DeviceID     string
	Credentials  transport.Credentials
	Will         *transport.Will
	CommandTopic string
	CommandQoS   transport.QoS
	// Timeout bounds a single connect attempt.
	Timeout time.Duration
	// RetryInterval is the constant delay between failed attempts.
	RetryInterval time.Duration
}

// Connection is the broker connection state machine. It is the only
// component that mutates the transport's connection; everything else asks it
// for the current State. Poll is non-blocking apart from one bounded connect
// attempt.
type Connection struct {
	t   transport.Transport
	cfg ConnectionConfig

	backoff backoff.BackOff
	state   State
	next    time.Time
	// failures counts consecutive failed attempts since the last success.
	failures int
	attempts int

	onConnected func(ctx context.Context, now time.Time)

	log     logger.Logger
	metrics metrics.Sink
}

// NewConnection returns a Disconnected machine whose first Poll attempts to
// connect. onConnected runs after every successful (re)connection, once the
// command subscription is in place.
func NewConnection(t transport.Transport, cfg ConnectionConfig, onConnected func(context.Context, time.Time), log logger.Logger, sink metrics.Sink) *Connection {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConnectTimeout
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Connection{
		t:           t,
		cfg:         cfg,
		backoff:     backoff.NewConstantBackOff(cfg.RetryInterval),
		state:       Disconnected,
		onConnected: onConnected,
		log:         logger.OrNop(log),
		metrics:     sink,
	}
}

// State returns the current state.
func (c *Connection) State() State { return c.state }

// NextAttempt returns when the next connect attempt is due. The zero time
// means at the next Poll.
func (c *Connection) NextAttempt() time.Time { return c.next }

// Attempts returns the total number of connect attempts made.
func (c *Connection) Attempts() int { return c.attempts }

// Failures returns the number of consecutive failed attempts.
func (c *Connection) Failures() int { return c.failures }

// Poll advances the machine by at most one transition chain and returns the
// resulting state.
func (c *Connection) Poll(ctx context.Context, now time.Time) State {
	switch c.state {
	case Connected:
		if !c.t.IsConnected() {
			c.log.Warnf("connection to broker lost")
			c.transition(now, Disconnected, 0, nil, 0)
			c.next = now
		}
	case Disconnected:
		if now.Before(c.next) {
			break
		}
		c.attempt(ctx, now)
	}
	return c.state
}

func (c *Connection) attempt(ctx context.Context, now time.Time) {
	c.attempts++
	c.transition(now, Connecting, c.attempts, nil, 0)

	actx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	err := c.t.Connect(actx, c.cfg.Credentials, c.cfg.Will)
	cancel()
	if err != nil {
		c.fail(now, err)
		return
	}
	if err := c.t.Subscribe(c.cfg.CommandTopic, c.cfg.CommandQoS); err != nil {
		c.t.Disconnect()
		c.fail(now, fmt.Errorf("subscribe %s: %w", c.cfg.CommandTopic, err))
		return
	}
	c.failures = 0
	c.backoff.Reset()
	c.next = time.Time{}
	c.transition(now, Connected, c.attempts, nil, 0)
	c.log.Infow("connected to broker", map[string]any{"attempt": c.attempts, "subscribed": c.cfg.CommandTopic})
	if c.onConnected != nil {
		c.onConnected(ctx, now)
	}
}

func (c *Connection) fail(now time.Time, err error) {
	c.failures++
	wait := c.backoff.NextBackOff()
	if wait == backoff.Stop {
		wait = c.cfg.RetryInterval
	}
	c.next = now.Add(wait)
	c.transition(now, Disconnected, c.attempts, err, wait)
	c.log.Warnf("connect attempt %d failed, retrying in %s: %v", c.attempts, wait, err)
}

func (c *Connection) transition(now time.Time, to State, attempt int, err error, retryIn time.Duration) {
	from := c.state
	c.state = to
	rec, ok := c.metrics.(metrics.ConnectionRecorder)
	if !ok {
		return
	}
	ev := metrics.ConnectionEvent{
		DeviceID: c.cfg.DeviceID,
		From:     from.String(),
		To:       to.String(),
		Attempt:  attempt,
		RetryIn:  retryIn,
		Time:     now,
	}
	if err != nil {
		ev.Err = err.Error()
	}
	if rerr := rec.RecordConnection(ev); rerr != nil {
		c.log.Errorf("record connection event: %v", rerr)
	}
}

// Publish sends through the transport only while Connected.
func (c *Connection) Publish(topic string, payload []byte, qos transport.QoS, retain bool) error {
	if c.state != Connected {
		return ErrNotConnected
	}
	return c.t.Publish(topic, payload, qos, retain)
}

// Close disconnects the transport and leaves the machine Disconnected.
func (c *Connection) Close(now time.Time) {
	if c.state == Connected {
		c.t.Disconnect()
	}
	if c.state != Disconnected {
		c.transition(now, Disconnected, c.attempts, nil, 0)
	}
}
