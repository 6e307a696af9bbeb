package bridge

import (
	"fmt"
	"time"

	"github.com/kilianp07/farmbridge/core/hal"
	"github.com/kilianp07/farmbridge/core/journal"
	"github.com/kilianp07/farmbridge/core/logger"
	"github.com/kilianp07/farmbridge/core/metrics"
	"github.com/kilianp07/farmbridge/core/protocol"
	"github.com/kilianp07/farmbridge/core/sensor"
	"github.com/kilianp07/farmbridge/core/transport"
)

// Defaults applied by New to zero option fields.
const (
	DefaultSendInterval    = 5 * time.Second
	DefaultRetryInterval   = 5 * time.Second
	DefaultConnectTimeout  = 3 * time.Second
	DefaultFirmwareVersion = "1.0.0"
)

// QoS holds the delivery guarantee used per message kind.
type QoS struct {
	Telemetry transport.QoS
	Status    transport.QoS
	Command   transport.QoS
	Response  transport.QoS
}

// DefaultQoS is best effort for telemetry and responses and at least once
// for status and commands.
func DefaultQoS() QoS {
	return QoS{
		Telemetry: transport.AtMostOnce,
		Status:    transport.AtLeastOnce,
		Command:   transport.AtLeastOnce,
		Response:  transport.AtMostOnce,
	}
}

// Options configure a Bridge. Everything except DeviceID and Transport has a
// usable zero value.
type Options struct {
	DeviceID        string
	Secret          string
	FirmwareVersion string
	ProtocolVersion string

	Transport transport.Transport
	QoS       *QoS

	Sensors []sensor.Sensor
	// BatterySensor names the sensor reported as battery_voltage instead of
	// in the sensors mapping.
	BatterySensor string
	Radio         hal.Radio
	// FreeMemory reports free memory in bytes for status messages.
	FreeMemory func() uint64

	SendInterval   time.Duration
	RetryInterval  time.Duration
	ConnectTimeout time.Duration

	// Boot is the uptime origin. Defaults to the time New is called.
	Boot  time.Time
	Clock TimeSource

	// DedupeWindow is the number of recent request ids whose responses are
	// replayed instead of re-running the handler. Zero disables replay.
	DedupeWindow int

	Handler Handler
	// OnReadings observes every set of readings gathered for telemetry.
	OnReadings func(now time.Time, readings []sensor.Reading)

	Metrics metrics.Sink
	Journal journal.Store
	Logger  logger.Logger
}

func (o *Options) setDefaults() {
	if o.FirmwareVersion == "" {
		o.FirmwareVersion = DefaultFirmwareVersion
	}
	if o.ProtocolVersion == "" {
		o.ProtocolVersion = protocol.Version
	}
	if o.QoS == nil {
		q := DefaultQoS()
		o.QoS = &q
	}
	if o.SendInterval == 0 {
		o.SendInterval = DefaultSendInterval
	}
	if o.RetryInterval == 0 {
		o.RetryInterval = DefaultRetryInterval
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.Boot.IsZero() {
		o.Boot = time.Now()
	}
	if o.Clock == nil {
		o.Clock = Uptime{Boot: o.Boot}
	}
	if o.FreeMemory == nil {
		o.FreeMemory = func() uint64 { return 0 }
	}
	if o.Metrics == nil {
		o.Metrics = metrics.NopSink{}
	}
	if o.Journal == nil {
		o.Journal = journal.Nop{}
	}
	o.Logger = logger.OrNop(o.Logger)
}

func (o *Options) validate() error {
	switch {
	case o.DeviceID == "":
		return fmt.Errorf("%w: device id is required", ErrInvalidOptions)
	case o.Transport == nil:
		return fmt.Errorf("%w: transport is required", ErrInvalidOptions)
	case o.SendInterval < 0, o.RetryInterval < 0, o.ConnectTimeout < 0:
		return fmt.Errorf("%w: intervals must not be negative", ErrInvalidOptions)
	case o.DedupeWindow < 0:
		return fmt.Errorf("%w: dedupe window must not be negative", ErrInvalidOptions)
	}
	return nil
}
