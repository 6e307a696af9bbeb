package sensor

import (
	"math"

	"github.com/kilianp07/farmbridge/core/hal"
)

// Battery divider and reference defaults.
const (
	DefaultVRef         = 3.3
	DefaultDividerRatio = 0.5
	DefaultBatteryEmpty = 3.0
	DefaultBatteryFull  = 4.2
)

// Voltage reads a battery through a resistor divider.
type Voltage struct {
	name    string
	in      hal.AnalogInput
	vref    float64
	ratio   float64
	samples int
}

func NewVoltage(name string, in hal.AnalogInput, vref, ratio float64, samples int) *Voltage {
	if vref <= 0 {
		vref = DefaultVRef
	}
	if ratio <= 0 {
		ratio = DefaultDividerRatio
	}
	return &Voltage{name: name, in: in, vref: vref, ratio: ratio, samples: samples}
}

func (v *Voltage) Name() string { return v.name }

func (v *Voltage) Read() Reading {
	raw, err := sampleRaw(v.in, v.samples)
	if err != nil {
		return Invalid(v.name)
	}
	return Valid(v.name, adcVolts(raw, v.vref)/v.ratio)
}

// Percent returns a view reporting the charge level between empty and full
// voltages, clamped to 0-100 %.
func (v *Voltage) Percent(name string, empty, full float64) Sensor {
	if full <= empty {
		empty, full = DefaultBatteryEmpty, DefaultBatteryFull
	}
	return batteryPercent{v: v, name: name, empty: empty, full: full}
}

type batteryPercent struct {
	v           *Voltage
	name        string
	empty, full float64
}

func (b batteryPercent) Name() string { return b.name }

func (b batteryPercent) Read() Reading {
	r := b.v.Read()
	if !r.Valid {
		return Invalid(b.name)
	}
	return Valid(b.name, clamp(mapRange(r.Value, b.empty, b.full, 0, 100), 0, 100))
}

// ACS712-05B defaults.
const (
	DefaultCurrentSensitivity = 185.0
	DefaultCurrentVCC         = 5.0
)

// Current reads a hall-effect current sensor, in A. The output idles at half
// the supply voltage; sensitivity is in mV per A.
type Current struct {
	name        string
	in          hal.AnalogInput
	vcc         float64
	sensitivity float64
	samples     int
}

func NewCurrent(name string, in hal.AnalogInput, vcc, sensitivity float64, samples int) *Current {
	if vcc <= 0 {
		vcc = DefaultCurrentVCC
	}
	if sensitivity <= 0 {
		sensitivity = DefaultCurrentSensitivity
	}
	return &Current{name: name, in: in, vcc: vcc, sensitivity: sensitivity, samples: samples}
}

func (c *Current) Name() string { return c.name }

func (c *Current) Read() Reading {
	raw, err := sampleRaw(c.in, c.samples)
	if err != nil {
		return Invalid(c.name)
	}
	v := adcVolts(raw, c.vcc)
	return Valid(c.name, math.Abs((v-c.vcc/2)/c.sensitivity*1000))
}
