package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/farmbridge/core/protocol"
	"github.com/kilianp07/farmbridge/core/topics"
	"github.com/kilianp07/farmbridge/core/transport"
	"github.com/kilianp07/farmbridge/infra/logger"
)

// ErrResponseTimeout is returned when no response arrives for a command.
var ErrResponseTimeout = errors.New("mqtt: response timeout")

// Commander is the operator side of the command protocol: it publishes
// commands to devices and correlates their responses by request id.
type Commander struct {
	cli pahoClient
	cfg Config
	qos byte

	mu      sync.Mutex
	waiters map[string]chan protocol.Response
	logger  logger.Logger
}

// NewCommander connects as clientID and subscribes to responses of every
// device.
func NewCommander(cfg Config, creds transport.Credentials, qos transport.QoS) (*Commander, error) {
	if creds.ClientID == "" {
		creds.ClientID = "farmctl-" + uuid.NewString()[:8]
	}
	opts, err := NewClientOptions(cfg, creds, nil)
	if err != nil {
		return nil, err
	}
	opts.SetConnectTimeout(cfg.operationTimeout())
	cmd := &Commander{
		cfg:     cfg,
		qos:     byte(qos),
		waiters: make(map[string]chan protocol.Response),
		logger:  logger.New("mqtt_commander"),
	}
	c := newMQTTClient(opts)
	if err := waitTimeout(c.Connect(), cfg.operationTimeout()); err != nil {
		return nil, fmt.Errorf("%w: %v", transport.ErrTransportUnavailable, err)
	}
	cmd.cli = c
	if err := waitTimeout(c.Subscribe(topics.Wildcard("response"), cmd.qos, cmd.onResponse), cfg.operationTimeout()); err != nil {
		c.Disconnect(0)
		return nil, fmt.Errorf("%w: %v", transport.ErrSubscribeFailed, err)
	}
	return cmd, nil
}

func (c *Commander) onResponse(_ paho.Client, msg paho.Message) {
	res, err := protocol.DecodeResponse(msg.Payload())
	if err != nil {
		c.logger.Errorf("failed to decode response on %s: %v", msg.Topic(), err)
		return
	}
	c.mu.Lock()
	ch, ok := c.waiters[res.RequestID]
	if ok {
		select {
		case ch <- res:
		default:
		}
		c.logger.Infof("received response %s", res.RequestID)
	}
	c.mu.Unlock()
}

// Send publishes a command to deviceID and returns the generated request id.
// Publishing is retried with exponential backoff until ctx is done.
func (c *Commander) Send(ctx context.Context, deviceID, name string, params protocol.Params) (string, error) {
	reqID := uuid.NewString()
	payload := protocol.EncodeCommand(protocol.Command{Name: name, RequestID: reqID, Params: params})

	// Register before publishing so a fast device cannot answer unobserved.
	c.mu.Lock()
	c.waiters[reqID] = make(chan protocol.Response, 1)
	c.mu.Unlock()

	topic := topics.For(deviceID).Command
	attempt := 0
	publish := func() error {
		attempt++
		err := waitTimeout(c.cli.Publish(topic, c.qos, false, payload), c.cfg.operationTimeout())
		if err != nil {
			c.logger.Errorf("publish attempt %d failed: %v", attempt, err)
		}
		return err
	}
	if err := backoff.Retry(publish, c.publishBackOff(ctx)); err != nil {
		c.forget(reqID)
		return "", fmt.Errorf("%w: %v", transport.ErrPublishFailed, err)
	}
	c.logger.Infof("sent %s %s to %s", name, reqID, topic)
	return reqID, nil
}

func (c *Commander) publishBackOff(ctx context.Context) backoff.BackOff {
	retries := c.cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = time.Duration(c.cfg.BackoffMS) * time.Millisecond
	if eb.InitialInterval <= 0 {
		eb.InitialInterval = 100 * time.Millisecond
	}
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(retries)), ctx)
}

// Wait blocks until the response to requestID arrives or timeout elapses.
func (c *Commander) Wait(requestID string, timeout time.Duration) (protocol.Response, error) {
	c.mu.Lock()
	ch := c.waiters[requestID]
	c.mu.Unlock()
	if ch == nil {
		return protocol.Response{}, fmt.Errorf("unknown request %s", requestID)
	}
	defer c.forget(requestID)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		return res, nil
	case <-timer.C:
		return protocol.Response{}, fmt.Errorf("%w: %s", ErrResponseTimeout, requestID)
	}
}

func (c *Commander) forget(requestID string) {
	c.mu.Lock()
	delete(c.waiters, requestID)
	c.mu.Unlock()
}

// Watch subscribes to every topic of deviceID, or of all devices when
// deviceID is empty, and calls fn for each frame. fn runs on paho's
// goroutine.
func (c *Commander) Watch(deviceID string, fn func(transport.Message)) error {
	filter := topics.Prefix + "/+/#"
	if deviceID != "" {
		filter = topics.Prefix + "/" + deviceID + "/#"
	}
	handler := func(_ paho.Client, msg paho.Message) {
		fn(transport.Message{Topic: msg.Topic(), Payload: msg.Payload(), Received: time.Now()})
	}
	if err := waitTimeout(c.cli.Subscribe(filter, c.qos, handler), c.cfg.operationTimeout()); err != nil {
		return fmt.Errorf("%w: %s: %v", transport.ErrSubscribeFailed, filter, err)
	}
	return nil
}

// Disconnect gracefully closes the MQTT connection.
func (c *Commander) Disconnect() {
	if c.cli != nil && c.cli.IsConnected() {
		c.cli.Disconnect(defaultDisconnectQuiesce)
	}
}
