// Package actuator drives the relays of a field device. Timed switching is
// cooperative: the scheduler calls Tick and expired relays are released there.
package actuator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/farmbridge/core/hal"
	"github.com/kilianp07/farmbridge/core/logger"
)

// ErrUnknownRelay is returned for relay ids absent from the configuration.
var ErrUnknownRelay = errors.New("actuator: unknown relay")

// RelayConfig binds a relay id to an output pin.
type RelayConfig struct {
	ID        string `json:"id"`
	Pin       int    `json:"pin"`
	ActiveLow bool   `json:"active_low"`
}

// State is the observable state of one relay.
type State struct {
	ID    string    `json:"id"`
	On    bool      `json:"on"`
	OffAt time.Time `json:"off_at,omitempty"`
}

type relay struct {
	cfg   RelayConfig
	out   hal.DigitalOutput
	on    bool
	offAt time.Time
}

func (r *relay) write(on bool) error {
	level := on
	if r.cfg.ActiveLow {
		level = !on
	}
	if err := r.out.Write(level); err != nil {
		return fmt.Errorf("relay %s: %w", r.cfg.ID, err)
	}
	r.on = on
	if !on {
		r.offAt = time.Time{}
	}
	return nil
}

// Bank owns the configured relays.
type Bank struct {
	mu     sync.Mutex
	relays map[string]*relay
	order  []string
	log    logger.Logger
}

// NewBank claims the output pin of every relay and switches it off.
func NewBank(board hal.Board, cfgs []RelayConfig, log logger.Logger) (*Bank, error) {
	b := &Bank{relays: make(map[string]*relay, len(cfgs)), log: logger.OrNop(log)}
	for _, c := range cfgs {
		if c.ID == "" {
			return nil, errors.New("actuator: relay id is required")
		}
		if _, dup := b.relays[c.ID]; dup {
			return nil, fmt.Errorf("actuator: duplicate relay id %q", c.ID)
		}
		out, err := board.Output(c.Pin)
		if err != nil {
			return nil, fmt.Errorf("relay %s: %w", c.ID, err)
		}
		r := &relay{cfg: c, out: out}
		if err := r.write(false); err != nil {
			return nil, err
		}
		b.relays[c.ID] = r
		b.order = append(b.order, c.ID)
	}
	return b, nil
}

// Has reports whether id is a configured relay.
func (b *Bank) Has(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.relays[id]
	return ok
}

// Set switches a relay. A positive d on an "on" request schedules the relay
// to switch off at now+d; any other request cancels a pending timer.
func (b *Bank) Set(id string, on bool, now time.Time, d time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.relays[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRelay, id)
	}
	if err := r.write(on); err != nil {
		return err
	}
	r.offAt = time.Time{}
	if on && d > 0 {
		r.offAt = now.Add(d)
	}
	b.log.Infow("relay switched", map[string]any{"relay": id, "on": on, "duration": d.String()})
	return nil
}

// Tick releases relays whose timer expired and returns their ids.
func (b *Bank) Tick(now time.Time) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var released []string
	for _, id := range b.order {
		r := b.relays[id]
		if !r.on || r.offAt.IsZero() || now.Before(r.offAt) {
			continue
		}
		if err := r.write(false); err != nil {
			b.log.Errorf("timed release of relay %s failed: %v", id, err)
			continue
		}
		b.log.Infow("relay timer expired", map[string]any{"relay": id})
		released = append(released, id)
	}
	return released
}

// States returns the relays in configuration order.
func (b *Bank) States() []State {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]State, 0, len(b.order))
	for _, id := range b.order {
		r := b.relays[id]
		out = append(out, State{ID: id, On: r.on, OffAt: r.offAt})
	}
	return out
}

// AllOff switches every relay off. It keeps going on errors and returns them
// joined.
func (b *Bank) AllOff() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	for _, id := range b.order {
		if err := b.relays[id].write(false); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
