package sensor

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/farmbridge/core/hal"
)

// sampleRaw reads n ADC samples and returns their median, which rejects the
// isolated spikes common on long sensor leads.
func sampleRaw(in hal.AnalogInput, n int) (float64, error) {
	if n < 1 {
		n = 1
	}
	xs := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		raw, err := in.ReadRaw()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrSensorFault, err)
		}
		if raw < 0 || raw > hal.ADCMax {
			return 0, fmt.Errorf("%w: adc value %d out of range", ErrSensorFault, raw)
		}
		xs = append(xs, float64(raw))
	}
	sort.Float64s(xs)
	return stat.Quantile(0.5, stat.Empirical, xs, nil), nil
}

// adcVolts converts a raw sample to volts against vref.
func adcVolts(raw, vref float64) float64 {
	return raw / hal.ADCMax * vref
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
