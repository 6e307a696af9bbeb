package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/farmbridge/core/hal"
	"github.com/kilianp07/farmbridge/core/journal"
	"github.com/kilianp07/farmbridge/core/logger"
	"github.com/kilianp07/farmbridge/core/metrics"
	"github.com/kilianp07/farmbridge/core/protocol"
	"github.com/kilianp07/farmbridge/core/sensor"
	"github.com/kilianp07/farmbridge/core/topics"
	"github.com/kilianp07/farmbridge/core/transport"
)

// publisher is the part of Connection the dispatcher depends on.
type publisher interface {
	State() State
	Publish(topic string, payload []byte, qos transport.QoS, retain bool) error
}

// Dispatcher schedules telemetry and routes inbound commands to the
// registered handler. All methods run on the scheduler goroutine.
type Dispatcher struct {
	deviceID        string
	firmwareVersion string
	protocolVersion string
	topics          topics.Set
	qos             QoS
	conn            publisher

	sensors    []sensor.Sensor
	battery    string
	radio      hal.Radio
	freeMemory func() uint64
	onReadings func(time.Time, []sensor.Reading)

	boot  time.Time
	clock TimeSource

	interval time.Duration
	lastSend time.Time

	handler Handler
	cache   *responseCache

	metrics metrics.Sink
	journal journal.Store
	log     logger.Logger
}

func newDispatcher(o *Options, set topics.Set, conn publisher) *Dispatcher {
	return &Dispatcher{
		deviceID:        o.DeviceID,
		firmwareVersion: o.FirmwareVersion,
		protocolVersion: o.ProtocolVersion,
		topics:          set,
		qos:             *o.QoS,
		conn:            conn,
		sensors:         o.Sensors,
		battery:         o.BatterySensor,
		radio:           o.Radio,
		freeMemory:      o.FreeMemory,
		onReadings:      o.OnReadings,
		boot:            o.Boot,
		clock:           o.Clock,
		interval:        o.SendInterval,
		handler:         o.Handler,
		cache:           newResponseCache(o.DedupeWindow),
		metrics:         o.Metrics,
		journal:         o.Journal,
		log:             o.Logger,
	}
}

// SetCommandHandler replaces the command handler.
func (d *Dispatcher) SetCommandHandler(h Handler) { d.handler = h }

// SetSendInterval changes the telemetry period. It applies from the next
// Tick.
func (d *Dispatcher) SetSendInterval(iv time.Duration) error {
	if iv <= 0 {
		return fmt.Errorf("send interval must be positive, got %s", iv)
	}
	d.interval = iv
	return nil
}

// SendInterval returns the telemetry period.
func (d *Dispatcher) SendInterval() time.Duration { return d.interval }

// LastSend returns the start of the current telemetry cycle.
func (d *Dispatcher) LastSend() time.Time { return d.lastSend }

// Tick starts a telemetry cycle when the interval has elapsed. It reports
// whether telemetry was published; a missed cycle is not retried.
func (d *Dispatcher) Tick(now time.Time) (bool, error) {
	if !d.lastSend.IsZero() && now.Sub(d.lastSend) < d.interval {
		return false, nil
	}
	d.lastSend = now
	if d.conn.State() != Connected {
		d.recordTelemetry(now, nil, false, ErrNotConnected)
		return false, ErrNotConnected
	}
	if err := d.publishTelemetry(now); err != nil {
		return false, err
	}
	return true, nil
}

// SendTelemetry publishes a telemetry message immediately and restarts the
// cycle.
func (d *Dispatcher) SendTelemetry(now time.Time) error {
	d.lastSend = now
	if d.conn.State() != Connected {
		d.recordTelemetry(now, nil, false, ErrNotConnected)
		return ErrNotConnected
	}
	return d.publishTelemetry(now)
}

func (d *Dispatcher) publishTelemetry(now time.Time) error {
	readings := sensor.ReadAll(d.sensors)
	if d.onReadings != nil {
		d.onReadings(now, readings)
	}
	msg := d.buildTelemetry(now, readings)
	err := d.conn.Publish(d.topics.Telemetry, protocol.EncodeTelemetry(msg), d.qos.Telemetry, false)
	d.recordTelemetry(now, readings, err == nil, err)
	if err != nil {
		d.log.Warnf("telemetry publish failed: %v", err)
		return err
	}
	d.log.Debugw("telemetry published", map[string]any{"sensors": len(msg.Sensors), "faults": len(msg.Faults)})
	return nil
}

func (d *Dispatcher) buildTelemetry(now time.Time, readings []sensor.Reading) protocol.Telemetry {
	msg := protocol.Telemetry{
		DeviceID:        d.deviceID,
		Timestamp:       d.clock.Timestamp(now),
		ProtocolVersion: d.protocolVersion,
		Sensors:         make(map[string]protocol.Decimal, len(readings)),
	}
	if d.radio != nil {
		msg.RSSI = d.radio.RSSI()
	}
	for _, r := range readings {
		if !r.Valid {
			msg.Faults = append(msg.Faults, r.Name)
			continue
		}
		if r.Name == d.battery && d.battery != "" {
			v := protocol.Decimal(r.Value)
			msg.BatteryVoltage = &v
			continue
		}
		msg.Sensors[r.Name] = protocol.Decimal(r.Value)
	}
	return msg
}

func (d *Dispatcher) recordTelemetry(now time.Time, readings []sensor.Reading, published bool, err error) {
	ev := metrics.TelemetryEvent{DeviceID: d.deviceID, Readings: readings, Published: published, Time: now}
	if err != nil {
		ev.Err = err.Error()
	}
	if rerr := d.metrics.RecordTelemetry(ev); rerr != nil {
		d.log.Errorf("record telemetry: %v", rerr)
	}
}

// SendStatus publishes a retained status message.
func (d *Dispatcher) SendStatus(now time.Time, status protocol.DeviceStatus, reason string) error {
	payload := protocol.EncodeStatus(d.status(now, status, reason))
	if err := d.conn.Publish(d.topics.Status, payload, d.qos.Status, true); err != nil {
		d.log.Warnf("status %s publish failed: %v", status, err)
		return err
	}
	d.log.Infow("status published", map[string]any{"status": string(status)})
	return nil
}

func (d *Dispatcher) status(now time.Time, status protocol.DeviceStatus, reason string) protocol.Status {
	return protocol.Status{
		DeviceID:        d.deviceID,
		Status:          status,
		Uptime:          seconds(now.Sub(d.boot)),
		FirmwareVersion: d.firmwareVersion,
		FreeMemory:      d.freeMemory(),
		ProtocolVersion: d.protocolVersion,
		Reason:          reason,
	}
}

// SendCommandResponse publishes a response for requestID.
func (d *Dispatcher) SendCommandResponse(now time.Time, requestID string, ok bool, message string) error {
	_, err := d.sendResponse(now, requestID, ok, message)
	return err
}

func (d *Dispatcher) sendResponse(now time.Time, requestID string, ok bool, message string) ([]byte, error) {
	res := protocol.Response{
		RequestID: requestID,
		Status:    protocol.ResponseSuccess,
		Message:   message,
		Timestamp: d.clock.Timestamp(now),
	}
	if !ok {
		res.Status = protocol.ResponseError
	}
	payload := protocol.EncodeCommandResponse(res)
	return payload, d.publishResponse(requestID, payload)
}

func (d *Dispatcher) publishResponse(requestID string, payload []byte) error {
	if err := d.conn.Publish(d.topics.Response, payload, d.qos.Response, false); err != nil {
		d.log.Warnf("response %s publish failed: %v", requestID, err)
		return err
	}
	return nil
}

// OnInbound handles one inbound frame. Only command-topic frames are
// considered; undecodable frames are dropped.
func (d *Dispatcher) OnInbound(ctx context.Context, now time.Time, msg transport.Message) {
	if msg.Topic != d.topics.Command {
		d.log.Debugf("ignoring frame on %s", msg.Topic)
		return
	}
	cmd, err := protocol.DecodeCommand(msg.Payload)
	if err != nil {
		d.log.Warnf("dropping command frame: %v", err)
		d.recordDecodeError(now, msg.Topic, err)
		return
	}

	if cmd.Tracked() {
		if cached, ok := d.cache.lookup(cmd.RequestID); ok {
			d.log.Infow("replaying response to redelivered command", map[string]any{"command": cmd.Name, "request_id": cmd.RequestID})
			_ = d.publishResponse(cmd.RequestID, cached)
			status, message := protocol.ResponseError, ""
			if res, err := protocol.DecodeResponse(cached); err == nil {
				status, message = res.Status, res.Message
			}
			d.recordCommand(ctx, now, cmd, status, message, true, 0)
			return
		}
	}

	start := time.Now()
	message, herr := d.invoke(ctx, cmd)
	latency := time.Since(start)
	ok := herr == nil
	if !ok {
		message = herr.Error()
	} else if message == "" {
		message = "ok"
	}
	d.log.Infow("command handled", map[string]any{"command": cmd.Name, "request_id": cmd.RequestID, "ok": ok})

	status := protocol.ResponseSuccess
	if !ok {
		status = protocol.ResponseError
	}
	var payload []byte
	if cmd.Tracked() {
		payload, _ = d.sendResponse(now, cmd.RequestID, ok, message)
		d.cache.store(cmd.RequestID, payload)
	}
	d.recordCommand(ctx, now, cmd, status, message, false, latency)
}

func (d *Dispatcher) invoke(ctx context.Context, cmd protocol.Command) (msg string, err error) {
	h := d.handler
	if h == nil {
		return "", ErrNoHandler
	}
	defer func() {
		if r := recover(); r != nil {
			d.log.Errorf("command handler panicked on %s: %v", cmd.Name, r)
			msg, err = "", fmt.Errorf("command %s failed: %v", cmd.Name, r)
		}
	}()
	return h.HandleCommand(ctx, cmd)
}

func (d *Dispatcher) recordDecodeError(now time.Time, topic string, err error) {
	rec, ok := d.metrics.(metrics.DecodeErrorRecorder)
	if !ok {
		return
	}
	ev := metrics.DecodeErrorEvent{DeviceID: d.deviceID, Topic: topic, Err: err.Error(), Time: now}
	if rerr := rec.RecordDecodeError(ev); rerr != nil {
		d.log.Errorf("record decode error: %v", rerr)
	}
}

func (d *Dispatcher) recordCommand(ctx context.Context, now time.Time, cmd protocol.Command, status protocol.ResponseStatus, message string, duplicate bool, latency time.Duration) {
	if rec, ok := d.metrics.(metrics.CommandRecorder); ok {
		ev := metrics.CommandEvent{
			DeviceID:  d.deviceID,
			Command:   cmd.Name,
			RequestID: cmd.RequestID,
			Status:    string(status),
			Duplicate: duplicate,
			Latency:   latency,
			Time:      now,
		}
		if err := rec.RecordCommand(ev); err != nil {
			d.log.Errorf("record command: %v", err)
		}
	}
	entry := journal.Entry{
		Timestamp: now,
		DeviceID:  d.deviceID,
		RequestID: cmd.RequestID,
		Command:   cmd.Name,
		Params:    cmd.Params,
		Status:    string(status),
		Message:   message,
		Duplicate: duplicate,
	}
	if err := d.journal.Append(ctx, entry); err != nil && !errors.Is(err, context.Canceled) {
		d.log.Errorf("journal append: %v", err)
	}
}
