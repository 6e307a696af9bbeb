package sensor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kilianp07/farmbridge/core/hal"
)

// PH reads an analog pH probe. Neutral water sits at 2.5 V and the probe
// slope is 0.18 V per pH unit.
type PH struct {
	name    string
	in      hal.AnalogInput
	vref    float64
	samples int

	mu     sync.Mutex
	offset float64
}

const (
	phNeutralVolts = 2.5
	phVoltsPerUnit = 0.18
)

func NewPH(name string, in hal.AnalogInput, vref float64, samples int) *PH {
	return &PH{name: name, in: in, vref: vref, samples: samples}
}

func (p *PH) Name() string { return p.name }

func (p *PH) Read() Reading {
	raw, err := sampleRaw(p.in, p.samples)
	if err != nil {
		return Invalid(p.name)
	}
	p.mu.Lock()
	off := p.offset
	p.mu.Unlock()
	return checked(p.name, phFromVolts(adcVolts(raw, p.vref))+off, PHRange)
}

func phFromVolts(v float64) float64 { return 7 + (phNeutralVolts-v)/phVoltsPerUnit }

// Calibrate takes the probe immersed in a buffer solution of known pH
// ("ph") and sets the offset so the current voltage reads as that pH.
func (p *PH) Calibrate(params map[string]float64) error {
	known, ok := params["ph"]
	if !ok {
		return errors.New("ph calibration: missing ph")
	}
	if !PHRange.Contains(known) {
		return fmt.Errorf("ph calibration: buffer ph %v out of range", known)
	}
	raw, err := sampleRaw(p.in, p.samples)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.offset = known - phFromVolts(adcVolts(raw, p.vref))
	p.mu.Unlock()
	return nil
}

// Offset returns the current calibration offset.
func (p *PH) Offset() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offset
}

// DefaultWaterTemperature is the reference temperature of TDS compensation.
const DefaultWaterTemperature = 25.0

// TDS reads a total dissolved solids probe, in ppm, compensated for water
// temperature.
type TDS struct {
	name    string
	in      hal.AnalogInput
	vref    float64
	samples int

	mu   sync.Mutex
	temp float64
}

func NewTDS(name string, in hal.AnalogInput, vref float64, samples int) *TDS {
	return &TDS{name: name, in: in, vref: vref, samples: samples, temp: DefaultWaterTemperature}
}

func (t *TDS) Name() string { return t.name }

// SetTemperature updates the compensation temperature, in °C.
func (t *TDS) SetTemperature(c float64) {
	t.mu.Lock()
	t.temp = c
	t.mu.Unlock()
}

func (t *TDS) Read() Reading {
	raw, err := sampleRaw(t.in, t.samples)
	if err != nil {
		return Invalid(t.name)
	}
	t.mu.Lock()
	temp := t.temp
	t.mu.Unlock()
	v := adcVolts(raw, t.vref)
	cv := v / (1 + 0.02*(temp-DefaultWaterTemperature))
	ppm := (133.42*cv*cv*cv - 255.86*cv*cv + 857.39*cv) * 0.5
	return checked(t.name, ppm, TDSRange)
}

// Calibrate accepts "temperature", the water temperature in °C.
func (t *TDS) Calibrate(params map[string]float64) error {
	c, ok := params["temperature"]
	if !ok {
		return errors.New("tds calibration: missing temperature")
	}
	if !TemperatureRange.Contains(c) {
		return fmt.Errorf("tds calibration: temperature %v out of range", c)
	}
	t.SetTemperature(c)
	return nil
}

// Ultrasonic ranger defaults.
const (
	DefaultTankHeight  = 100.0
	DefaultEchoTimeout = 30 * time.Millisecond
	soundCmPerMicro    = 0.034
)

// WaterLevel measures the water height in a tank with an ultrasonic ranger
// mounted at the top. It reports centimetres, or percent of the tank height
// when Percent is set.
type WaterLevel struct {
	name    string
	ranger  hal.EchoRanger
	timeout time.Duration
	percent bool

	mu   sync.Mutex
	tank float64
}

func NewWaterLevel(name string, r hal.EchoRanger, tankCm float64, percent bool) *WaterLevel {
	if tankCm <= 0 {
		tankCm = DefaultTankHeight
	}
	return &WaterLevel{name: name, ranger: r, timeout: DefaultEchoTimeout, tank: tankCm, percent: percent}
}

func (w *WaterLevel) Name() string { return w.name }

// Distance returns the distance to the water surface in centimetres.
func (w *WaterLevel) Distance() (float64, error) {
	d, err := w.ranger.Echo(w.timeout)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSensorFault, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: no echo", ErrSensorFault)
	}
	return float64(d.Microseconds()) * soundCmPerMicro / 2, nil
}

func (w *WaterLevel) Read() Reading {
	dist, err := w.Distance()
	if err != nil {
		return Invalid(w.name)
	}
	w.mu.Lock()
	tank := w.tank
	w.mu.Unlock()
	level := tank - dist
	if level < 0 || level > tank {
		return Invalid(w.name)
	}
	if w.percent {
		return checked(w.name, level/tank*100, PercentRange)
	}
	return Valid(w.name, level)
}

// Calibrate accepts "tank_height" in centimetres.
func (w *WaterLevel) Calibrate(params map[string]float64) error {
	h, ok := params["tank_height"]
	if !ok {
		return errors.New("water level calibration: missing tank_height")
	}
	if h <= 0 {
		return fmt.Errorf("water level calibration: tank_height must be positive, got %v", h)
	}
	w.mu.Lock()
	w.tank = h
	w.mu.Unlock()
	return nil
}

// Flow meter defaults. The YF-S201 pulse frequency in Hz is 7.5 times the
// flow in L/min.
const (
	DefaultFlowFactor = 7.5
	minFlowWindow     = time.Second
)

// FlowRate counts hall-effect pulses and reports litres per minute over the
// window since the previous read. Pulses arrive on the interrupt goroutine;
// Read snapshots and resets the counter atomically.
type FlowRate struct {
	name   string
	pulse  hal.PulseInput
	factor float64
	now    func() time.Time

	pulses atomic.Uint64
	total  atomic.Uint64
	last   time.Time
}

func NewFlowRate(name string, p hal.PulseInput, factor float64) *FlowRate {
	if factor <= 0 {
		factor = DefaultFlowFactor
	}
	return &FlowRate{name: name, pulse: p, factor: factor, now: time.Now}
}

func (f *FlowRate) Name() string { return f.name }

// Initialize attaches the pulse handler and opens the first window.
func (f *FlowRate) Initialize(_ context.Context) error {
	f.last = f.now()
	return f.pulse.OnPulse(f.count)
}

func (f *FlowRate) count() { f.pulses.Add(1) }

func (f *FlowRate) Read() Reading {
	if f.last.IsZero() {
		return Invalid(f.name)
	}
	now := f.now()
	elapsed := now.Sub(f.last)
	if elapsed < minFlowWindow {
		return Invalid(f.name)
	}
	n := f.pulses.Swap(0)
	f.total.Add(n)
	f.last = now
	hz := float64(n) / elapsed.Seconds()
	rate := hz / f.factor
	if !finite(rate) {
		return Invalid(f.name)
	}
	return Valid(f.name, rate)
}

// TotalLiters returns the volume measured since start.
func (f *FlowRate) TotalLiters() float64 {
	return float64(f.total.Load()+f.pulses.Load()) / (f.factor * 60)
}

// Close detaches the pulse handler.
func (f *FlowRate) Close() { f.pulse.Detach() }
