package protocol

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Params holds the free-form arguments of a command as decoded from JSON:
// numbers are float64, strings are string, booleans are bool.
type Params map[string]any

// Has reports whether key is present.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Float returns key as a number. Numeric strings are accepted since some
// backends quote every value.
func (p Params) Float(key string) (float64, error) {
	v, ok := p[key]
	if !ok {
		return 0, fmt.Errorf("missing parameter %q", key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("parameter %q: %w", key, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("parameter %q is %T, want number", key, v)
	}
}

// Int returns key as an integer. Fractional values are rejected.
func (p Params) Int(key string) (int, error) {
	f, err := p.Float(key)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("parameter %q is not an integer", key)
	}
	return int(f), nil
}

// String returns key as a string.
func (p Params) String(key string) (string, error) {
	v, ok := p[key]
	if !ok {
		return "", fmt.Errorf("missing parameter %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %q is %T, want string", key, v)
	}
	return s, nil
}

// Floats returns every numeric parameter, skipping the others.
func (p Params) Floats() map[string]float64 {
	out := make(map[string]float64, len(p))
	for k := range p {
		if f, err := p.Float(k); err == nil {
			out[k] = f
		}
	}
	return out
}
