package sensor

import (
	"math"

	"github.com/kilianp07/farmbridge/core/hal"
)

// luxReference is the illuminance reported as 100 % by percent views.
const luxReference = 50000.0

// Light reports illuminance in lux, either from a digital lux meter or from
// an analog photoresistor mapped onto the full lux range.
type Light struct {
	name    string
	analog  hal.AnalogInput
	meter   hal.LuxMeter
	samples int
}

// NewAnalogLight builds a photoresistor driver.
func NewAnalogLight(name string, in hal.AnalogInput, samples int) *Light {
	return &Light{name: name, analog: in, samples: samples}
}

// NewDigitalLight builds a driver over a BH1750-style lux meter.
func NewDigitalLight(name string, m hal.LuxMeter) *Light {
	return &Light{name: name, meter: m}
}

func (l *Light) Name() string { return l.name }

func (l *Light) Read() Reading {
	lux, err := l.lux()
	if err != nil || math.IsNaN(lux) {
		return Invalid(l.name)
	}
	return checked(l.name, lux, LuxRange)
}

func (l *Light) lux() (float64, error) {
	if l.meter != nil {
		return l.meter.Lux()
	}
	raw, err := sampleRaw(l.analog, l.samples)
	if err != nil {
		return 0, err
	}
	return mapRange(raw, 0, hal.ADCMax, LuxRange.Min, LuxRange.Max), nil
}

// Percent returns a view reporting illuminance relative to full daylight
// shade, clamped to 0-100 %.
func (l *Light) Percent(name string) Sensor { return lightPercent{l: l, name: name} }

type lightPercent struct {
	l    *Light
	name string
}

func (p lightPercent) Name() string { return p.name }

func (p lightPercent) Read() Reading {
	r := p.l.Read()
	if !r.Valid {
		return Invalid(p.name)
	}
	return Valid(p.name, clamp(r.Value/luxReference*100, 0, 100))
}
