package protocol

import (
	"math"
	"strconv"
)

// Version is the protocol tag carried in telemetry and status messages.
const Version = "1.0"

// Decimal is a float encoded in plain decimal notation, never with an
// exponent, so that constrained consumers can parse it. Whole values carry no
// fractional part: 61 is written as 61.
type Decimal float64

// MarshalJSON implements json.Marshaler.
func (d Decimal) MarshalJSON() ([]byte, error) {
	f := float64(d)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, &nonFiniteError{v: f}
	}
	return strconv.AppendFloat(nil, f, 'f', -1, 64), nil
}

type nonFiniteError struct{ v float64 }

func (e *nonFiniteError) Error() string {
	return "protocol: non-finite value " + strconv.FormatFloat(e.v, 'g', -1, 64)
}

// Telemetry is one periodic sensor report.
type Telemetry struct {
	DeviceID        string             `json:"device_id"`
	Timestamp       uint64             `json:"timestamp"`
	ProtocolVersion string             `json:"protocol_version"`
	Sensors         map[string]Decimal `json:"sensors"`
	BatteryVoltage  *Decimal           `json:"battery_voltage,omitempty"`
	RSSI            int                `json:"rssi"`
	// Faults names the sensors whose reading was invalid this cycle. Their
	// values are absent from Sensors.
	Faults []string `json:"faults,omitempty"`
}

// DeviceStatus is the liveness state announced on the status topic.
type DeviceStatus string

const (
	StatusOnline  DeviceStatus = "online"
	StatusOffline DeviceStatus = "offline"
	StatusError   DeviceStatus = "error"
)

// Status is the retained liveness beacon.
type Status struct {
	DeviceID        string       `json:"device_id"`
	Status          DeviceStatus `json:"status"`
	Uptime          uint64       `json:"uptime"`
	FirmwareVersion string       `json:"firmware_version"`
	FreeMemory      uint64       `json:"free_memory"`
	ProtocolVersion string       `json:"protocol_version"`
	Reason          string       `json:"reason,omitempty"`
}

// Command is an inbound instruction for the device.
type Command struct {
	Name      string `json:"command"`
	RequestID string `json:"request_id,omitempty"`
	Params    Params `json:"params,omitempty"`
}

// Tracked reports whether the issuer expects a correlated response.
func (c Command) Tracked() bool { return c.RequestID != "" }

// ResponseStatus is the outcome of a command.
type ResponseStatus string

const (
	ResponseSuccess ResponseStatus = "success"
	ResponseError   ResponseStatus = "error"
)

// Response correlates the outcome of a command with its request id.
type Response struct {
	RequestID string         `json:"request_id"`
	Status    ResponseStatus `json:"status"`
	Message   string         `json:"message"`
	Timestamp uint64         `json:"timestamp"`
}

// OK reports whether the command succeeded.
func (r Response) OK() bool { return r.Status == ResponseSuccess }
