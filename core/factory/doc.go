// Package factory instantiates pluggable modules (sensor drivers, metrics
// sinks) from configuration. A module is a type name plus a map of raw
// settings; each factory decodes the settings into its own struct with
// Decode and returns the concrete implementation.
//
//	sensors:
//	  - type: soil_moisture
//	    conf: {name: soil_moisture, pin: 34, dry: 4095, wet: 1500}
package factory
