package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/farmbridge/core/bridge"
	"github.com/kilianp07/farmbridge/core/protocol"
)

const (
	defaultTickInterval = 100 * time.Millisecond
	defaultDedupeWindow = 64
)

// BridgeConfig holds the scheduler and protocol settings.
type BridgeConfig struct {
	SendIntervalMS   int    `json:"send_interval_ms"`
	RetryIntervalMS  int    `json:"retry_interval_ms"`
	ConnectTimeoutMS int    `json:"connect_timeout_ms"`
	TickIntervalMS   int    `json:"tick_interval_ms"`
	ProtocolVersion  string `json:"protocol_version"`
	// TimestampSource is uptime (seconds since boot) or wall (unix seconds).
	TimestampSource string `json:"timestamp_source"`
	// DedupeWindow of 0 disables duplicate suppression.
	DedupeWindow *int `json:"dedupe_window"`
	// BatterySensor names the sensor reported as battery_voltage.
	BatterySensor string `json:"battery_sensor"`
}

func (c *BridgeConfig) SetDefaults() {
	if c.SendIntervalMS == 0 {
		c.SendIntervalMS = int(bridge.DefaultSendInterval / time.Millisecond)
	}
	if c.RetryIntervalMS == 0 {
		c.RetryIntervalMS = int(bridge.DefaultRetryInterval / time.Millisecond)
	}
	if c.ConnectTimeoutMS == 0 {
		c.ConnectTimeoutMS = int(bridge.DefaultConnectTimeout / time.Millisecond)
	}
	if c.TickIntervalMS == 0 {
		c.TickIntervalMS = int(defaultTickInterval / time.Millisecond)
	}
	if c.ProtocolVersion == "" {
		c.ProtocolVersion = protocol.Version
	}
	if c.TimestampSource == "" {
		c.TimestampSource = "uptime"
	}
	if c.DedupeWindow == nil {
		n := defaultDedupeWindow
		c.DedupeWindow = &n
	}
}

func (c BridgeConfig) Validate() error {
	var errs []error
	for name, v := range map[string]int{
		"send_interval_ms":   c.SendIntervalMS,
		"retry_interval_ms":  c.RetryIntervalMS,
		"connect_timeout_ms": c.ConnectTimeoutMS,
		"tick_interval_ms":   c.TickIntervalMS,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("bridge.%s must be positive, got %d", name, v))
		}
	}
	if _, ok := bridge.NewTimeSource(c.TimestampSource, time.Time{}); !ok {
		errs = append(errs, fmt.Errorf("bridge.timestamp_source %q is not uptime or wall", c.TimestampSource))
	}
	if c.DedupeWindow != nil && *c.DedupeWindow < 0 {
		errs = append(errs, fmt.Errorf("bridge.dedupe_window must not be negative"))
	}
	return errors.Join(errs...)
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func (c BridgeConfig) SendInterval() time.Duration   { return ms(c.SendIntervalMS) }
func (c BridgeConfig) RetryInterval() time.Duration  { return ms(c.RetryIntervalMS) }
func (c BridgeConfig) ConnectTimeout() time.Duration { return ms(c.ConnectTimeoutMS) }
func (c BridgeConfig) TickInterval() time.Duration   { return ms(c.TickIntervalMS) }

// Dedupe returns the dedupe window size.
func (c BridgeConfig) Dedupe() int {
	if c.DedupeWindow == nil {
		return defaultDedupeWindow
	}
	return *c.DedupeWindow
}
