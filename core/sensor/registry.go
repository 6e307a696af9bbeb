package sensor

import (
	"fmt"
	"time"

	"github.com/kilianp07/farmbridge/core/factory"
	"github.com/kilianp07/farmbridge/core/hal"
)

// Builder binds decoded driver settings to a board. One configured device may
// yield several sensors, one per quantity.
type Builder func(hal.Board) ([]Sensor, error)

var registry = factory.NewRegistry[Builder]()

// Register adds a driver type. It is meant to be called from init.
func Register(name string, f factory.Factory[Builder]) {
	if err := registry.Register(name, f); err != nil {
		panic(err)
	}
}

// Types lists the registered driver types.
func Types() []string { return registry.Types() }

// Build instantiates every configured sensor on board. Sensor names must be
// unique across the device since they key the telemetry mapping.
func Build(cfgs []factory.ModuleConfig, board hal.Board) ([]Sensor, error) {
	var out []Sensor
	seen := make(map[string]struct{})
	for i, c := range cfgs {
		b, err := registry.Create(c)
		if err != nil {
			return nil, fmt.Errorf("sensor %d (%s): %w", i, c.Type, err)
		}
		ss, err := b(board)
		if err != nil {
			return nil, fmt.Errorf("sensor %d (%s): %w", i, c.Type, err)
		}
		for _, s := range ss {
			if _, dup := seen[s.Name()]; dup {
				return nil, fmt.Errorf("sensor %d (%s): duplicate sensor name %q", i, c.Type, s.Name())
			}
			seen[s.Name()] = struct{}{}
			out = append(out, s)
		}
	}
	return out, nil
}

func decode[T any](conf map[string]any, def T) (T, error) {
	cfg := def
	if conf == nil {
		return cfg, nil
	}
	if err := factory.Decode(conf, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// AnalogConf holds the settings shared by ADC based drivers.
type AnalogConf struct {
	Name    string  `json:"name"`
	Pin     int     `json:"pin"`
	Samples int     `json:"samples"`
	VRef    float64 `json:"vref"`
}

type humitureConf struct {
	Pin             int    `json:"pin"`
	Model           string `json:"model"`
	TemperatureName string `json:"temperature_name"`
	HumidityName    string `json:"humidity_name"`
	WarmupMs        int    `json:"warmup_ms"`
}

type soilConf struct {
	AnalogConf `json:",squash"`
	Dry        *float64 `json:"dry"`
	Wet        *float64 `json:"wet"`
}

type phConf struct {
	AnalogConf `json:",squash"`
	Offset     float64 `json:"offset"`
}

type tdsConf struct {
	AnalogConf  `json:",squash"`
	Temperature *float64 `json:"temperature"`
}

type waterLevelConf struct {
	Name       string  `json:"name"`
	TrigPin    int     `json:"trig_pin"`
	EchoPin    int     `json:"echo_pin"`
	TankHeight float64 `json:"tank_height"`
	Percent    bool    `json:"percent"`
}

type flowConf struct {
	Name   string  `json:"name"`
	Pin    int     `json:"pin"`
	Factor float64 `json:"factor"`
}

type voltageConf struct {
	AnalogConf  `json:",squash"`
	Ratio       float64 `json:"ratio"`
	PercentName string  `json:"percent_name"`
	Empty       float64 `json:"empty"`
	Full        float64 `json:"full"`
}

type currentConf struct {
	AnalogConf  `json:",squash"`
	VCC         float64 `json:"vcc"`
	Sensitivity float64 `json:"sensitivity"`
}

type lightConf struct {
	AnalogConf  `json:",squash"`
	Digital     bool   `json:"digital"`
	Address     int    `json:"address"`
	PercentName string `json:"percent_name"`
}

func vref(v float64) float64 {
	if v <= 0 {
		return DefaultVRef
	}
	return v
}

func init() {
	Register("dht", func(conf map[string]any) (Builder, error) {
		c, err := decode(conf, humitureConf{
			Model:           "DHT22",
			TemperatureName: "temperature",
			HumidityName:    "humidity",
			WarmupMs:        int(DefaultHumitureWarmup / time.Millisecond),
		})
		if err != nil {
			return nil, err
		}
		return func(b hal.Board) ([]Sensor, error) {
			dev, err := b.Humiture(c.Pin, c.Model)
			if err != nil {
				return nil, err
			}
			h := NewHumiture(dev, c.TemperatureName, c.HumidityName, time.Duration(c.WarmupMs)*time.Millisecond)
			return []Sensor{h.Temperature(), h.Humidity()}, nil
		}, nil
	})

	Register("soil_moisture", func(conf map[string]any) (Builder, error) {
		c, err := decode(conf, soilConf{AnalogConf: AnalogConf{Name: "soil_moisture", Samples: 1}})
		if err != nil {
			return nil, err
		}
		return func(b hal.Board) ([]Sensor, error) {
			in, err := b.Analog(c.Pin)
			if err != nil {
				return nil, err
			}
			s := NewSoilMoisture(c.Name, in, c.Samples)
			cal := map[string]float64{}
			if c.Dry != nil {
				cal["dry"] = *c.Dry
			}
			if c.Wet != nil {
				cal["wet"] = *c.Wet
			}
			if len(cal) > 0 {
				if err := s.Calibrate(cal); err != nil {
					return nil, err
				}
			}
			return []Sensor{s}, nil
		}, nil
	})

	Register("ph", func(conf map[string]any) (Builder, error) {
		c, err := decode(conf, phConf{AnalogConf: AnalogConf{Name: "ph", Samples: 10}})
		if err != nil {
			return nil, err
		}
		return func(b hal.Board) ([]Sensor, error) {
			in, err := b.Analog(c.Pin)
			if err != nil {
				return nil, err
			}
			p := NewPH(c.Name, in, vref(c.VRef), c.Samples)
			p.offset = c.Offset
			return []Sensor{p}, nil
		}, nil
	})

	Register("tds", func(conf map[string]any) (Builder, error) {
		c, err := decode(conf, tdsConf{AnalogConf: AnalogConf{Name: "tds", Samples: 10}})
		if err != nil {
			return nil, err
		}
		return func(b hal.Board) ([]Sensor, error) {
			in, err := b.Analog(c.Pin)
			if err != nil {
				return nil, err
			}
			t := NewTDS(c.Name, in, vref(c.VRef), c.Samples)
			if c.Temperature != nil {
				t.SetTemperature(*c.Temperature)
			}
			return []Sensor{t}, nil
		}, nil
	})

	Register("water_level", func(conf map[string]any) (Builder, error) {
		c, err := decode(conf, waterLevelConf{Name: "water_level", TankHeight: DefaultTankHeight})
		if err != nil {
			return nil, err
		}
		return func(b hal.Board) ([]Sensor, error) {
			r, err := b.Echo(c.TrigPin, c.EchoPin)
			if err != nil {
				return nil, err
			}
			return []Sensor{NewWaterLevel(c.Name, r, c.TankHeight, c.Percent)}, nil
		}, nil
	})

	Register("flow_rate", func(conf map[string]any) (Builder, error) {
		c, err := decode(conf, flowConf{Name: "flow_rate", Factor: DefaultFlowFactor})
		if err != nil {
			return nil, err
		}
		return func(b hal.Board) ([]Sensor, error) {
			p, err := b.Pulse(c.Pin)
			if err != nil {
				return nil, err
			}
			return []Sensor{NewFlowRate(c.Name, p, c.Factor)}, nil
		}, nil
	})

	Register("voltage", func(conf map[string]any) (Builder, error) {
		c, err := decode(conf, voltageConf{
			AnalogConf: AnalogConf{Name: "battery", Samples: 1},
			Ratio:      DefaultDividerRatio,
			Empty:      DefaultBatteryEmpty,
			Full:       DefaultBatteryFull,
		})
		if err != nil {
			return nil, err
		}
		return func(b hal.Board) ([]Sensor, error) {
			in, err := b.Analog(c.Pin)
			if err != nil {
				return nil, err
			}
			v := NewVoltage(c.Name, in, c.VRef, c.Ratio, c.Samples)
			out := []Sensor{v}
			if c.PercentName != "" {
				out = append(out, v.Percent(c.PercentName, c.Empty, c.Full))
			}
			return out, nil
		}, nil
	})

	Register("current", func(conf map[string]any) (Builder, error) {
		c, err := decode(conf, currentConf{AnalogConf: AnalogConf{Name: "current", Samples: 10}})
		if err != nil {
			return nil, err
		}
		return func(b hal.Board) ([]Sensor, error) {
			in, err := b.Analog(c.Pin)
			if err != nil {
				return nil, err
			}
			return []Sensor{NewCurrent(c.Name, in, c.VCC, c.Sensitivity, c.Samples)}, nil
		}, nil
	})

	Register("light", func(conf map[string]any) (Builder, error) {
		c, err := decode(conf, lightConf{AnalogConf: AnalogConf{Name: "light", Samples: 1}, Address: 0x23})
		if err != nil {
			return nil, err
		}
		return func(b hal.Board) ([]Sensor, error) {
			var l *Light
			if c.Digital {
				m, err := b.Lux(c.Address)
				if err != nil {
					return nil, err
				}
				l = NewDigitalLight(c.Name, m)
			} else {
				in, err := b.Analog(c.Pin)
				if err != nil {
					return nil, err
				}
				l = NewAnalogLight(c.Name, in, c.Samples)
			}
			out := []Sensor{l}
			if c.PercentName != "" {
				out = append(out, l.Percent(c.PercentName))
			}
			return out, nil
		}, nil
	})
}
