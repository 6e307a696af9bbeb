package bridge

import "time"

// TimeSource turns the scheduler's clock into protocol timestamps.
type TimeSource interface {
	Timestamp(now time.Time) uint64
}

// Uptime yields seconds elapsed since Boot. It is the default source: it
// needs no synchronized clock, which also means consumers cannot correlate
// timestamps across reboots.
type Uptime struct {
	Boot time.Time
}

func (u Uptime) Timestamp(now time.Time) uint64 { return seconds(now.Sub(u.Boot)) }

// WallClock yields Unix seconds. Use it only when the device clock is
// synchronized, e.g. over NTP.
type WallClock struct{}

func (WallClock) Timestamp(now time.Time) uint64 {
	if now.Unix() < 0 {
		return 0
	}
	return uint64(now.Unix())
}

// NewTimeSource returns the source named by kind: "uptime" (or empty) or
// "wall".
func NewTimeSource(kind string, boot time.Time) (TimeSource, bool) {
	switch kind {
	case "", "uptime":
		return Uptime{Boot: boot}, true
	case "wall":
		return WallClock{}, true
	default:
		return nil, false
	}
}

func seconds(d time.Duration) uint64 {
	if d < 0 {
		return 0
	}
	return uint64(d / time.Second)
}
