// Package bridge connects a field device to the farm broker. It owns the
// connection lifecycle, publishes telemetry and status, and answers commands.
//
// A Bridge is driven cooperatively: the caller invokes Tick from a single
// goroutine, and inbound frames are handled inside that call. Nothing in the
// package spawns goroutines, so its state needs no locking.
package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/farmbridge/core/logger"
	"github.com/kilianp07/farmbridge/core/protocol"
	"github.com/kilianp07/farmbridge/core/topics"
	"github.com/kilianp07/farmbridge/core/transport"
)

// Report summarizes one Tick.
type Report struct {
	State State
	// Inbound is the number of frames drained from the transport.
	Inbound       int
	TelemetrySent bool
	// TelemetryErr is set when a telemetry cycle was due but not published.
	TelemetryErr error
	NextAttempt  time.Time
}

// Bridge wires the connection state machine to the dispatcher.
type Bridge struct {
	deviceID string
	topics   topics.Set
	t        transport.Transport
	conn     *Connection
	disp     *Dispatcher
	log      logger.Logger
}

// New builds a Bridge. The device identity and topic set are fixed for its
// lifetime.
func New(o Options) (*Bridge, error) {
	o.setDefaults()
	if err := o.validate(); err != nil {
		return nil, err
	}
	set := topics.For(o.DeviceID)
	b := &Bridge{deviceID: o.DeviceID, topics: set, t: o.Transport, log: o.Logger}

	will := &transport.Will{
		Topic: set.Status,
		Payload: protocol.EncodeStatus(protocol.Status{
			DeviceID:        o.DeviceID,
			Status:          protocol.StatusOffline,
			FirmwareVersion: o.FirmwareVersion,
			ProtocolVersion: o.ProtocolVersion,
			Reason:          "connection lost",
		}),
		QoS:    o.QoS.Status,
		Retain: true,
	}
	b.conn = NewConnection(o.Transport, ConnectionConfig{
		DeviceID: o.DeviceID,
		Credentials: transport.Credentials{
			ClientID: o.DeviceID,
			Username: o.DeviceID,
			Password: o.Secret,
		},
		Will:          will,
		CommandTopic:  set.Command,
		CommandQoS:    o.QoS.Command,
		Timeout:       o.ConnectTimeout,
		RetryInterval: o.RetryInterval,
	}, b.onConnected, o.Logger, o.Metrics)
	b.disp = newDispatcher(&o, set, b.conn)
	return b, nil
}

func (b *Bridge) onConnected(_ context.Context, now time.Time) {
	_ = b.disp.SendStatus(now, protocol.StatusOnline, "")
}

// Tick runs one scheduler iteration: advance the connection, handle the
// frames received since the previous tick, then run the telemetry cycle.
func (b *Bridge) Tick(ctx context.Context, now time.Time) Report {
	var r Report
	b.conn.Poll(ctx, now)
	r.Inbound = b.t.Drain(func(m transport.Message) {
		b.disp.OnInbound(ctx, now, m)
	})
	r.TelemetrySent, r.TelemetryErr = b.disp.Tick(now)
	r.State = b.conn.State()
	r.NextAttempt = b.conn.NextAttempt()
	return r
}

// SetCommandHandler replaces the command handler; the last one wins.
func (b *Bridge) SetCommandHandler(h Handler) { b.disp.SetCommandHandler(h) }

// SetSendInterval changes the telemetry period from the next Tick on.
func (b *Bridge) SetSendInterval(iv time.Duration) error { return b.disp.SetSendInterval(iv) }

// SendInterval returns the telemetry period.
func (b *Bridge) SendInterval() time.Duration { return b.disp.SendInterval() }

// State returns the connection state.
func (b *Bridge) State() State { return b.conn.State() }

// Connection exposes the state machine for inspection.
func (b *Bridge) Connection() *Connection { return b.conn }

// Topics returns the device's topic set.
func (b *Bridge) Topics() topics.Set { return b.topics }

// DeviceID returns the device identity.
func (b *Bridge) DeviceID() string { return b.deviceID }

// LastTelemetry returns the start of the current telemetry cycle.
func (b *Bridge) LastTelemetry() time.Time { return b.disp.LastSend() }

// SendTelemetry publishes telemetry now, outside the periodic schedule.
func (b *Bridge) SendTelemetry(now time.Time) error { return b.disp.SendTelemetry(now) }

// SendStatus publishes a retained status message.
func (b *Bridge) SendStatus(now time.Time, status protocol.DeviceStatus) error {
	return b.disp.SendStatus(now, status, "")
}

// SendCommandResponse publishes a response for an out-of-band command.
func (b *Bridge) SendCommandResponse(now time.Time, requestID string, ok bool, message string) error {
	if requestID == "" {
		return fmt.Errorf("send command response: empty request id")
	}
	return b.disp.SendCommandResponse(now, requestID, ok, message)
}

// Close announces the device offline when connected and disconnects.
func (b *Bridge) Close(_ context.Context, now time.Time) error {
	var err error
	if b.conn.State() == Connected {
		err = b.disp.SendStatus(now, protocol.StatusOffline, "shutdown")
	}
	b.conn.Close(now)
	return err
}
