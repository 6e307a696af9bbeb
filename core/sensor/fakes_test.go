package sensor

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/kilianp07/farmbridge/core/hal"
)

type fakeAnalog struct {
	raw []int
	err error
	i   int
}

func (f *fakeAnalog) ReadRaw() (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	v := f.raw[f.i%len(f.raw)]
	f.i++
	return v, nil
}

func analog(raw ...int) *fakeAnalog { return &fakeAnalog{raw: raw} }

type fakeHumiture struct {
	temp, hum float64
	beginErr  error
	begun     int
}

func (f *fakeHumiture) Begin() error {
	f.begun++
	return f.beginErr
}

func (f *fakeHumiture) Temperature() (float64, error) { return f.temp, nil }
func (f *fakeHumiture) Humidity() (float64, error)    { return f.hum, nil }

type fakeRanger struct {
	d   time.Duration
	err error
}

func (f fakeRanger) Echo(time.Duration) (time.Duration, error) { return f.d, f.err }

type fakePulse struct {
	mu sync.Mutex
	fn func()
}

func (f *fakePulse) OnPulse(fn func()) error {
	f.mu.Lock()
	f.fn = fn
	f.mu.Unlock()
	return nil
}

func (f *fakePulse) Detach() {
	f.mu.Lock()
	f.fn = nil
	f.mu.Unlock()
}

func (f *fakePulse) fire(n int) {
	f.mu.Lock()
	fn := f.fn
	f.mu.Unlock()
	for i := 0; i < n; i++ {
		fn()
	}
}

type fakeLux struct {
	lux float64
	err error
}

func (f fakeLux) Lux() (float64, error) { return f.lux, f.err }

type fakeBoard struct {
	analog map[int]*fakeAnalog
}

func newFakeBoard() *fakeBoard { return &fakeBoard{analog: map[int]*fakeAnalog{}} }

func (b *fakeBoard) Analog(pin int) (hal.AnalogInput, error) {
	if a, ok := b.analog[pin]; ok {
		return a, nil
	}
	return analog(2048), nil
}

func (b *fakeBoard) Humiture(int, string) (hal.Humiture, error) {
	return &fakeHumiture{temp: 21, hum: 40}, nil
}

func (b *fakeBoard) Echo(int, int) (hal.EchoRanger, error) {
	return fakeRanger{d: time.Millisecond}, nil
}

func (b *fakeBoard) Pulse(int) (hal.PulseInput, error) { return &fakePulse{}, nil }

func (b *fakeBoard) Lux(int) (hal.LuxMeter, error) { return fakeLux{lux: 1200}, nil }

func (b *fakeBoard) Output(int) (hal.DigitalOutput, error) {
	return nil, errors.New("not supported")
}

func (b *fakeBoard) Radio() hal.Radio { return nil }

var nan = math.NaN()
