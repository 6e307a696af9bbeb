package sensor

import (
	"fmt"
	"sync"

	"github.com/kilianp07/farmbridge/core/hal"
)

// Capacitive probe calibration defaults: raw ADC value in air and in water.
const (
	DefaultSoilDry = 4095
	DefaultSoilWet = 1500
)

// SoilMoisture maps a capacitive probe reading to 0-100 %.
type SoilMoisture struct {
	name    string
	in      hal.AnalogInput
	samples int

	mu  sync.Mutex
	dry float64
	wet float64
}

// NewSoilMoisture builds a probe with the default calibration.
func NewSoilMoisture(name string, in hal.AnalogInput, samples int) *SoilMoisture {
	return &SoilMoisture{name: name, in: in, samples: samples, dry: DefaultSoilDry, wet: DefaultSoilWet}
}

func (s *SoilMoisture) Name() string { return s.name }

func (s *SoilMoisture) Read() Reading {
	raw, err := sampleRaw(s.in, s.samples)
	if err != nil {
		return Invalid(s.name)
	}
	s.mu.Lock()
	dry, wet := s.dry, s.wet
	s.mu.Unlock()
	pct := clamp(mapRange(raw, dry, wet, 0, 100), 0, 100)
	return checked(s.name, pct, SoilMoistureRange)
}

// Calibrate accepts "dry" and "wet" raw values. Either may be omitted.
func (s *SoilMoisture) Calibrate(params map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dry, wet := s.dry, s.wet
	if v, ok := params["dry"]; ok {
		dry = v
	}
	if v, ok := params["wet"]; ok {
		wet = v
	}
	if dry == wet {
		return fmt.Errorf("soil moisture calibration: dry and wet must differ (got %v)", dry)
	}
	s.dry, s.wet = dry, wet
	return nil
}
