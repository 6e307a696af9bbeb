// Package sensor defines the read capability shared by every physical sensor
// driver and provides the drivers used on the farm devices.
//
// A driver never hands a numeric sentinel to callers: a failed or implausible
// measurement yields a Reading with Valid set to false.
package sensor

import (
	"context"
	"errors"
)

// ErrSensorFault marks an invalid physical measurement inside a driver. It
// never crosses the Sensor boundary; Read turns it into an invalid Reading.
var ErrSensorFault = errors.New("sensor: fault")

// Reading is one measured quantity.
type Reading struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Valid bool    `json:"valid"`
}

// Valid builds a valid reading.
func Valid(name string, v float64) Reading {
	return Reading{Name: name, Value: v, Valid: true}
}

// Invalid builds a faulted reading. Value is always zero and must not be used.
func Invalid(name string) Reading {
	return Reading{Name: name}
}

// Sensor is the capability consumed by the bridge.
type Sensor interface {
	Name() string
	Read() Reading
}

// Initializer is implemented by drivers that need one-time setup, possibly
// with a settling delay, before their first valid reading.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// Calibrator is implemented by drivers whose calibration can be changed at
// runtime, e.g. from a calibrate_sensor command.
type Calibrator interface {
	Calibrate(params map[string]float64) error
}

// ReadAll reads every sensor once, in order.
func ReadAll(sensors []Sensor) []Reading {
	out := make([]Reading, 0, len(sensors))
	for _, s := range sensors {
		out = append(out, s.Read())
	}
	return out
}

// InitializeAll initializes the sensors that need it. It stops at the first
// error.
func InitializeAll(ctx context.Context, sensors []Sensor) error {
	for _, s := range sensors {
		if in, ok := s.(Initializer); ok {
			if err := in.Initialize(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// Find returns the sensor called name.
func Find(sensors []Sensor, name string) (Sensor, bool) {
	for _, s := range sensors {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}
