package app

import (
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/farmbridge/core/logger"
	"github.com/kilianp07/farmbridge/core/metrics"
	"github.com/kilianp07/farmbridge/core/sensor"
)

// Limit bounds a reading. A nil side is unbounded.
type Limit struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

func (l Limit) breached(v float64) bool {
	return (l.Min != nil && v < *l.Min) || (l.Max != nil && v > *l.Max)
}

// Thresholds watches readings against the limits set with set_threshold.
// Every telemetry cycle with a reading outside its limit is recorded; the
// warning is only logged when the reading leaves its limit.
type Thresholds struct {
	mu       sync.Mutex
	limits   map[string]Limit
	breached map[string]bool

	deviceID string
	sink     metrics.Sink
	log      logger.Logger
}

func NewThresholds(deviceID string, sink metrics.Sink, log logger.Logger) *Thresholds {
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Thresholds{
		limits:   make(map[string]Limit),
		breached: make(map[string]bool),
		deviceID: deviceID,
		sink:     sink,
		log:      logger.OrNop(log),
	}
}

// Set replaces the limit of a sensor. A limit with neither side clears it.
func (t *Thresholds) Set(name string, l Limit) error {
	if l.Min != nil && l.Max != nil && *l.Min > *l.Max {
		return fmt.Errorf("threshold for %s: min %g is above max %g", name, *l.Min, *l.Max)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.breached, name)
	if l.Min == nil && l.Max == nil {
		delete(t.limits, name)
		return nil
	}
	t.limits[name] = l
	return nil
}

// Limits returns a copy of the configured limits.
func (t *Thresholds) Limits() map[string]Limit {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]Limit, len(t.limits))
	for k, v := range t.limits {
		out[k] = v
	}
	return out
}

// Check evaluates the valid readings and returns the breaches found.
func (t *Thresholds) Check(now time.Time, readings []sensor.Reading) []metrics.ThresholdEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []metrics.ThresholdEvent
	for _, r := range readings {
		l, ok := t.limits[r.Name]
		if !ok || !r.Valid {
			continue
		}
		if !l.breached(r.Value) {
			if t.breached[r.Name] {
				t.log.Infow("reading back within threshold", map[string]any{"sensor": r.Name, "value": r.Value})
			}
			delete(t.breached, r.Name)
			continue
		}
		ev := metrics.ThresholdEvent{DeviceID: t.deviceID, Sensor: r.Name, Value: r.Value, Min: l.Min, Max: l.Max, Time: now}
		out = append(out, ev)
		if !t.breached[r.Name] {
			t.log.Warnf("%s reading %g is outside its threshold", r.Name, r.Value)
		}
		t.breached[r.Name] = true
		if rec, ok := t.sink.(metrics.ThresholdRecorder); ok {
			if err := rec.RecordThresholdBreach(ev); err != nil {
				t.log.Errorf("record threshold breach: %v", err)
			}
		}
	}
	return out
}
