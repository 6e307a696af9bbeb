package sensor

// Range is the plausible interval of a quantity, bounds included.
type Range struct {
	Min float64
	Max float64
}

// Contains reports whether v lies within r.
func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

// Plausible ranges of the quantities reported by the farm sensors. Values
// outside them are treated as sensor faults.
var (
	TemperatureRange  = Range{Min: -40, Max: 80}
	HumidityRange     = Range{Min: 0, Max: 100}
	SoilMoistureRange = Range{Min: 0, Max: 100}
	PHRange           = Range{Min: 0, Max: 14}
	TDSRange          = Range{Min: 0, Max: 5000}
	LuxRange          = Range{Min: 0, Max: 100000}
	PercentRange      = Range{Min: 0, Max: 100}
)

func checked(name string, v float64, r Range) Reading {
	if !r.Contains(v) {
		return Invalid(name)
	}
	return Valid(name, v)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// mapRange linearly maps v from [inLo, inHi] to [outLo, outHi]. inLo may be
// larger than inHi for inverted transfer curves.
func mapRange(v, inLo, inHi, outLo, outHi float64) float64 {
	return (v-inLo)*(outHi-outLo)/(inHi-inLo) + outLo
}
