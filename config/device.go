package config

import (
	"fmt"
	"strings"

	"github.com/kilianp07/farmbridge/core/bridge"
)

// DeviceConfig is the device identity. The secret is only ever sent as the
// broker password.
type DeviceConfig struct {
	ID              string `json:"id"`
	Secret          string `json:"secret"`
	FirmwareVersion string `json:"firmware_version"`
}

func (c *DeviceConfig) SetDefaults() {
	if c.FirmwareVersion == "" {
		c.FirmwareVersion = bridge.DefaultFirmwareVersion
	}
}

// Validate rejects ids that would break the topic schema.
func (c DeviceConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("device.id is required")
	}
	if strings.ContainsAny(c.ID, "/+#") {
		return fmt.Errorf("device.id %q must not contain '/', '+' or '#'", c.ID)
	}
	return nil
}
