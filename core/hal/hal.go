// Package hal describes the hardware a field device exposes to sensor drivers
// and actuators. A Board hands out pin-level peripherals; infra/hal/sim
// provides a simulated board.
package hal

import (
	"errors"
	"time"
)

// ADCMax is the largest raw value of the 12-bit analog inputs.
const ADCMax = 4095

var (
	// ErrTimeout is returned when a pulse-based measurement sees no edge
	// before its deadline.
	ErrTimeout = errors.New("hal: measurement timeout")

	// ErrNoReading is returned by digital sensors that answered without data.
	ErrNoReading = errors.New("hal: no reading")

	// ErrPinInUse is returned when a pin is claimed twice.
	ErrPinInUse = errors.New("hal: pin already in use")
)

// AnalogInput is an ADC channel.
type AnalogInput interface {
	ReadRaw() (int, error)
}

// Humiture is a combined temperature/humidity sensor of the DHT family.
type Humiture interface {
	Begin() error
	Temperature() (float64, error)
	Humidity() (float64, error)
}

// EchoRanger triggers an ultrasonic ping and returns the echo pulse width.
type EchoRanger interface {
	Echo(timeout time.Duration) (time.Duration, error)
}

// PulseInput delivers falling edges of an interrupt pin. fn may be called
// from any goroutine.
type PulseInput interface {
	OnPulse(fn func()) error
	Detach()
}

// LuxMeter is a digital ambient light sensor.
type LuxMeter interface {
	Lux() (float64, error)
}

// DigitalOutput drives a GPIO line, typically a relay coil.
type DigitalOutput interface {
	Write(high bool) error
}

// Radio reports link quality of the network interface.
type Radio interface {
	RSSI() int
}

// Board hands out peripherals by pin.
type Board interface {
	Analog(pin int) (AnalogInput, error)
	Humiture(pin int, model string) (Humiture, error)
	Echo(trigPin, echoPin int) (EchoRanger, error)
	Pulse(pin int) (PulseInput, error)
	Lux(addr int) (LuxMeter, error)
	Output(pin int) (DigitalOutput, error)
	Radio() Radio
}
