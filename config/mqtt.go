package config

import (
	"fmt"

	"github.com/kilianp07/farmbridge/core/bridge"
	"github.com/kilianp07/farmbridge/core/transport"
	"github.com/kilianp07/farmbridge/infra/mqtt"
)

const defaultBroker = "tcp://localhost:1883"

// MQTTConfig extends the paho settings with the QoS of each message kind.
type MQTTConfig struct {
	mqtt.Config `json:",squash"`
	QoS         QoSConfig `json:"qos"`
}

// QoSConfig holds per-kind QoS levels. Nil means the default.
type QoSConfig struct {
	Telemetry *int `json:"telemetry"`
	Status    *int `json:"status"`
	Command   *int `json:"command"`
	Response  *int `json:"response"`
}

func (c *MQTTConfig) SetDefaults() {
	if c.Broker == "" {
		c.Broker = defaultBroker
	}
	if c.AuthMethod == "" {
		c.AuthMethod = "username_password"
	}
}

func (c MQTTConfig) Validate() error {
	switch c.AuthMethod {
	case "username_password", "certificate", "both":
	default:
		return fmt.Errorf("mqtt.auth_method %q is not one of username_password, certificate, both", c.AuthMethod)
	}
	for name, q := range map[string]*int{
		"telemetry": c.QoS.Telemetry, "status": c.QoS.Status,
		"command": c.QoS.Command, "response": c.QoS.Response,
	} {
		if q != nil && (*q < 0 || *q > 1) {
			return fmt.Errorf("mqtt.qos.%s must be 0 or 1, got %d", name, *q)
		}
	}
	return nil
}

// Levels resolves the configured QoS over the bridge defaults.
func (c QoSConfig) Levels() bridge.QoS {
	q := bridge.DefaultQoS()
	set := func(dst *transport.QoS, v *int) {
		if v != nil {
			*dst = transport.QoS(*v)
		}
	}
	set(&q.Telemetry, c.Telemetry)
	set(&q.Status, c.Status)
	set(&q.Command, c.Command)
	set(&q.Response, c.Response)
	return q
}
