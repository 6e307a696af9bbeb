package metrics

import (
	"time"

	"github.com/kilianp07/farmbridge/core/sensor"
)

// TelemetryEvent describes one telemetry cycle.
type TelemetryEvent struct {
	DeviceID  string
	Readings  []sensor.Reading
	Published bool
	Err       string
	Time      time.Time
}

// Sink is the minimal metrics sink: every sink records telemetry cycles.
type Sink interface {
	RecordTelemetry(ev TelemetryEvent) error
}

// ConnectionEvent is a connection state transition or a failed attempt.
type ConnectionEvent struct {
	DeviceID string
	From     string
	To       string
	Attempt  int
	Err      string
	// RetryIn is the delay before the next attempt when the attempt failed.
	RetryIn time.Duration
	Time    time.Time
}

// ConnectionRecorder records connection lifecycle events.
type ConnectionRecorder interface {
	RecordConnection(ev ConnectionEvent) error
}

// CommandEvent is the outcome of one inbound command.
type CommandEvent struct {
	DeviceID  string
	Command   string
	RequestID string
	Status    string
	Duplicate bool
	Latency   time.Duration
	Time      time.Time
}

// CommandRecorder records handled commands.
type CommandRecorder interface {
	RecordCommand(ev CommandEvent) error
}

// DecodeErrorEvent is an inbound frame dropped because it could not be decoded.
type DecodeErrorEvent struct {
	DeviceID string
	Topic    string
	Err      string
	Time     time.Time
}

// DecodeErrorRecorder records dropped frames.
type DecodeErrorRecorder interface {
	RecordDecodeError(ev DecodeErrorEvent) error
}

// ThresholdEvent is a reading outside the limits set with set_threshold.
type ThresholdEvent struct {
	DeviceID string
	Sensor   string
	Value    float64
	Min      *float64
	Max      *float64
	Time     time.Time
}

// ThresholdRecorder records threshold breaches.
type ThresholdRecorder interface {
	RecordThresholdBreach(ev ThresholdEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordTelemetry(TelemetryEvent) error       { return nil }
func (NopSink) RecordConnection(ConnectionEvent) error     { return nil }
func (NopSink) RecordCommand(CommandEvent) error           { return nil }
func (NopSink) RecordDecodeError(DecodeErrorEvent) error   { return nil }
func (NopSink) RecordThresholdBreach(ThresholdEvent) error { return nil }
