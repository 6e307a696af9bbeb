package metrics

import "github.com/kilianp07/farmbridge/core/factory"

// Config lists the metrics sinks to build at startup.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
}
