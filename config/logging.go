package config

import (
	"fmt"

	"github.com/kilianp07/farmbridge/infra/logger"
)

// LoggingConfig selects the process logger.
type LoggingConfig struct {
	logger.Config `json:",squash"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Backend == "" {
		c.Backend = "zerolog"
	}
}

// Validate checks the level, format and backend names.
func (c LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Level)
	}
	switch c.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", c.Format)
	}
	if c.Backend != "zerolog" && c.Backend != "logrus" {
		return fmt.Errorf("unknown log backend %q", c.Backend)
	}
	return nil
}
