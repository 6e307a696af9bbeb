package sensor

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/kilianp07/farmbridge/core/hal"
)

// DefaultHumitureWarmup is the settling delay of DHT sensors after power up.
const DefaultHumitureWarmup = 2 * time.Second

// Humiture drives a DHT temperature/humidity sensor. The device reports two
// quantities, so it exposes one Sensor per quantity through Temperature and
// Humidity. Both views share a single initialization.
type Humiture struct {
	dev    hal.Humiture
	warmup time.Duration

	once    sync.Once
	initErr error
	ready   bool

	tempName string
	humName  string
}

// NewHumiture wraps dev. Readings are invalid until Initialize has returned.
func NewHumiture(dev hal.Humiture, tempName, humName string, warmup time.Duration) *Humiture {
	if warmup < 0 {
		warmup = 0
	}
	return &Humiture{dev: dev, warmup: warmup, tempName: tempName, humName: humName}
}

// Initialize starts the device and waits for it to settle.
func (h *Humiture) Initialize(ctx context.Context) error {
	h.once.Do(func() {
		if err := h.dev.Begin(); err != nil {
			h.initErr = err
			return
		}
		if h.warmup > 0 {
			t := time.NewTimer(h.warmup)
			defer t.Stop()
			select {
			case <-ctx.Done():
				h.initErr = ctx.Err()
				return
			case <-t.C:
			}
		}
		h.ready = true
	})
	return h.initErr
}

// Temperature returns the temperature view, in °C.
func (h *Humiture) Temperature() Sensor { return humitureView{h: h, temp: true} }

// Humidity returns the relative humidity view, in %.
func (h *Humiture) Humidity() Sensor { return humitureView{h: h} }

type humitureView struct {
	h    *Humiture
	temp bool
}

func (v humitureView) Name() string {
	if v.temp {
		return v.h.tempName
	}
	return v.h.humName
}

func (v humitureView) Initialize(ctx context.Context) error { return v.h.Initialize(ctx) }

func (v humitureView) Read() Reading {
	name := v.Name()
	if !v.h.ready {
		return Invalid(name)
	}
	var (
		val float64
		err error
		rng Range
	)
	if v.temp {
		val, err = v.h.dev.Temperature()
		rng = TemperatureRange
	} else {
		val, err = v.h.dev.Humidity()
		rng = HumidityRange
	}
	// DHT libraries report a failed bus transaction as NaN.
	if err != nil || math.IsNaN(val) {
		return Invalid(name)
	}
	return checked(name, val, rng)
}
