package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/farmbridge/core/actuator"
	"github.com/kilianp07/farmbridge/core/factory"
	"github.com/kilianp07/farmbridge/core/journal"
	"github.com/kilianp07/farmbridge/core/metrics"
	"github.com/kilianp07/farmbridge/infra/amqp"
	"github.com/kilianp07/farmbridge/infra/hal/sim"
	"github.com/kilianp07/farmbridge/infra/httpapi"
)

// EnvPrefix marks environment overrides; FARM_DEVICE__SECRET sets
// device.secret.
const EnvPrefix = "FARM_"

type Config struct {
	Device    DeviceConfig `json:"device"`
	Transport string       `json:"transport"`
	MQTT      MQTTConfig   `json:"mqtt"`
	AMQP      amqp.Config  `json:"amqp"`
	Bridge    BridgeConfig `json:"bridge"`
	Board     sim.Config   `json:"board"`

	Sensors         []factory.ModuleConfig  `json:"sensors"`
	Relays          []actuator.RelayConfig `json:"relays"`
	IrrigationRelay string                 `json:"irrigation_relay"`

	Metrics metrics.Config `json:"metrics"`
	HTTP    httpapi.Config `json:"http"`
	Journal journal.Config `json:"journal"`
	Logging LoggingConfig  `json:"logging"`
}

// Load reads path, applies FARM_ environment overrides, fills defaults and
// validates the result. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// Optional environment overrides
	if err := k.Load(env.Provider(EnvPrefix, "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Device.SetDefaults()
	if c.Transport == "" {
		c.Transport = "mqtt"
	}
	c.MQTT.SetDefaults()
	c.AMQP.SetDefaults()
	c.Bridge.SetDefaults()
	c.Board.SetDefaults()
	if c.Journal.Backend == "" {
		c.Journal.Backend = "none"
	}
	c.Logging.SetDefaults()
}

// Validate checks every section and reports all problems at once.
func (c Config) Validate() error {
	var errs []error
	if err := c.Device.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Transport {
	case "mqtt":
	case "amqp":
		if strings.Contains(c.Device.ID, ".") {
			errs = append(errs, fmt.Errorf("device.id %q must not contain dots with the amqp transport", c.Device.ID))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Transport))
	}
	if err := c.MQTT.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Bridge.Validate(); err != nil {
		errs = append(errs, err)
	}
	seen := map[string]bool{}
	for i, r := range c.Relays {
		if r.ID == "" {
			errs = append(errs, fmt.Errorf("relays[%d]: id is required", i))
		} else if seen[r.ID] {
			errs = append(errs, fmt.Errorf("relays[%d]: duplicate id %q", i, r.ID))
		}
		seen[r.ID] = true
	}
	if c.IrrigationRelay != "" && !seen[c.IrrigationRelay] {
		errs = append(errs, fmt.Errorf("irrigation_relay %q is not a configured relay", c.IrrigationRelay))
	}
	for i, s := range c.Sensors {
		if s.Type == "" {
			errs = append(errs, fmt.Errorf("sensors[%d]: type is required", i))
		}
	}
	switch c.Journal.Backend {
	case "none":
	case "jsonl", "sqlite":
		if c.Journal.Path == "" {
			errs = append(errs, fmt.Errorf("journal.path is required for the %s backend", c.Journal.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown journal backend %q", c.Journal.Backend))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
