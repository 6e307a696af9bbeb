// Package sim provides a simulated hal.Board for running a device bridge
// without hardware. Every peripheral returns a configurable baseline with
// gaussian noise.
package sim

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kilianp07/farmbridge/core/hal"
)

const soundCmPerMicro = 0.0343

// Config holds the simulated environment.
type Config struct {
	Seed uint64 `json:"seed"`
	// RSSI is the baseline link quality in dBm.
	RSSI int `json:"rssi"`
	// Noise is the standard deviation relative to each baseline.
	Noise float64 `json:"noise"`
	// Analog maps a pin to its baseline raw ADC value. Unlisted pins sit at
	// mid scale.
	Analog       map[int]int `json:"analog"`
	Temperature  float64     `json:"temperature"`
	Humidity     float64     `json:"humidity"`
	DistanceCm   float64     `json:"distance_cm"`
	Lux          float64     `json:"lux"`
	PulseHz      float64     `json:"pulse_hz"`
	FailHumiture bool        `json:"fail_humiture"`
}

// SetDefaults fills zero fields with a plausible greenhouse.
func (c *Config) SetDefaults() {
	if c.Seed == 0 {
		c.Seed = 1
	}
	if c.RSSI == 0 {
		c.RSSI = -60
	}
	if c.Noise == 0 {
		c.Noise = 0.01
	}
	if c.Temperature == 0 {
		c.Temperature = 22
	}
	if c.Humidity == 0 {
		c.Humidity = 55
	}
	if c.DistanceCm == 0 {
		c.DistanceCm = 40
	}
	if c.Lux == 0 {
		c.Lux = 20000
	}
}

// Board is a simulated hal.Board. It is safe for concurrent use.
type Board struct {
	cfg Config

	mu      sync.Mutex
	noise   distuv.Normal
	claimed map[string]bool
	outputs map[int]bool
	pulses  []*pulse
}

var _ hal.Board = (*Board)(nil)

// NewBoard returns a board seeded from cfg.
func NewBoard(cfg Config) *Board {
	cfg.SetDefaults()
	return &Board{
		cfg:     cfg,
		noise:   distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)},
		claimed: make(map[string]bool),
		outputs: make(map[int]bool),
	}
}

// jitter returns base with relative gaussian noise applied.
func (b *Board) jitter(base float64) float64 {
	b.mu.Lock()
	z := b.noise.Rand()
	b.mu.Unlock()
	return base + z*b.cfg.Noise*math.Abs(base)
}

func (b *Board) claim(kind string, pin int) error {
	key := fmt.Sprintf("%s:%d", kind, pin)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.claimed[key] {
		return fmt.Errorf("%w: %s", hal.ErrPinInUse, key)
	}
	b.claimed[key] = true
	return nil
}

type analog struct {
	b    *Board
	base float64
}

func (a analog) ReadRaw() (int, error) {
	v := math.Round(a.b.jitter(a.base))
	return int(math.Max(0, math.Min(hal.ADCMax, v))), nil
}

func (b *Board) Analog(pin int) (hal.AnalogInput, error) {
	base, ok := b.cfg.Analog[pin]
	if !ok {
		base = hal.ADCMax / 2
	}
	return analog{b: b, base: float64(base)}, nil
}

type humiture struct {
	b       *Board
	started bool
	mu      sync.Mutex
}

func (h *humiture) Begin() error {
	h.mu.Lock()
	h.started = true
	h.mu.Unlock()
	return nil
}

func (h *humiture) read(base float64) (float64, error) {
	h.mu.Lock()
	started := h.started
	h.mu.Unlock()
	if !started || h.b.cfg.FailHumiture {
		return math.NaN(), nil
	}
	return h.b.jitter(base), nil
}

func (h *humiture) Temperature() (float64, error) { return h.read(h.b.cfg.Temperature) }
func (h *humiture) Humidity() (float64, error)    { return h.read(h.b.cfg.Humidity) }

func (b *Board) Humiture(pin int, model string) (hal.Humiture, error) {
	switch model {
	case "DHT11", "DHT22", "":
	default:
		return nil, fmt.Errorf("sim: unsupported humiture model %q", model)
	}
	if err := b.claim("humiture", pin); err != nil {
		return nil, err
	}
	return &humiture{b: b}, nil
}

type echo struct{ b *Board }

func (e echo) Echo(timeout time.Duration) (time.Duration, error) {
	d := e.b.jitter(e.b.cfg.DistanceCm)
	if d <= 0 {
		return 0, hal.ErrTimeout
	}
	width := time.Duration(d*2/soundCmPerMicro) * time.Microsecond
	if width > timeout {
		return 0, hal.ErrTimeout
	}
	return width, nil
}

func (b *Board) Echo(trigPin, echoPin int) (hal.EchoRanger, error) {
	if err := b.claim("gpio", trigPin); err != nil {
		return nil, err
	}
	if err := b.claim("gpio", echoPin); err != nil {
		return nil, err
	}
	return echo{b: b}, nil
}

// pulse emits edges at the configured rate from its own goroutine, the way
// an interrupt would.
type pulse struct {
	hz   float64
	mu   sync.Mutex
	stop chan struct{}
}

func (p *pulse) OnPulse(fn func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return fmt.Errorf("sim: pulse handler already attached")
	}
	p.stop = make(chan struct{})
	if p.hz <= 0 {
		return nil
	}
	go func(stop <-chan struct{}) {
		t := time.NewTicker(time.Duration(float64(time.Second) / p.hz))
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				fn()
			}
		}
	}(p.stop)
	return nil
}

func (p *pulse) Detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
}

func (b *Board) Pulse(pin int) (hal.PulseInput, error) {
	if err := b.claim("gpio", pin); err != nil {
		return nil, err
	}
	p := &pulse{hz: b.cfg.PulseHz}
	b.mu.Lock()
	b.pulses = append(b.pulses, p)
	b.mu.Unlock()
	return p, nil
}

type lux struct{ b *Board }

func (l lux) Lux() (float64, error) { return math.Max(0, l.b.jitter(l.b.cfg.Lux)), nil }

func (b *Board) Lux(addr int) (hal.LuxMeter, error) {
	if err := b.claim("i2c", addr); err != nil {
		return nil, err
	}
	return lux{b: b}, nil
}

type output struct {
	b   *Board
	pin int
}

func (o output) Write(high bool) error {
	o.b.mu.Lock()
	o.b.outputs[o.pin] = high
	o.b.mu.Unlock()
	return nil
}

func (b *Board) Output(pin int) (hal.DigitalOutput, error) {
	if err := b.claim("gpio", pin); err != nil {
		return nil, err
	}
	return output{b: b, pin: pin}, nil
}

// OutputLevel returns the level last written to pin.
func (b *Board) OutputLevel(pin int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outputs[pin]
}

type radio struct{ b *Board }

func (r radio) RSSI() int { return int(math.Round(r.b.jitter(float64(r.b.cfg.RSSI)))) }

func (b *Board) Radio() hal.Radio { return radio{b: b} }

// Close detaches every pulse generator.
func (b *Board) Close() {
	b.mu.Lock()
	pulses := b.pulses
	b.pulses = nil
	b.mu.Unlock()
	for _, p := range pulses {
		p.Detach()
	}
}
