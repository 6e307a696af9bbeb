package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/farmbridge/core/metrics"
)

// PromSink exposes bridge events as Prometheus metrics.
type PromSink struct {
	telemetry   *prometheus.CounterVec
	sensorValue *prometheus.GaugeVec
	faults      *prometheus.CounterVec
	transitions *prometheus.CounterVec
	failures    *prometheus.CounterVec
	connected   *prometheus.GaugeVec
	commands    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	decodeErrs  *prometheus.CounterVec
	breaches    *prometheus.CounterVec
}

var (
	_ coremetrics.ConnectionRecorder  = (*PromSink)(nil)
	_ coremetrics.CommandRecorder     = (*PromSink)(nil)
	_ coremetrics.DecodeErrorRecorder = (*PromSink)(nil)
	_ coremetrics.ThresholdRecorder   = (*PromSink)(nil)
)

// NewPromSink registers bridge metrics on the default Prometheus registerer.
// They are served by the diagnostics API on /metrics.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by an earlier sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{}
	var err error
	if s.telemetry, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "farm_telemetry_cycles_total",
		Help: "Telemetry cycles by outcome",
	}, []string{"device_id", "published"})); err != nil {
		return nil, err
	}
	if s.sensorValue, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "farm_sensor_value",
		Help: "Last valid reading per sensor",
	}, []string{"device_id", "sensor"})); err != nil {
		return nil, err
	}
	if s.faults, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "farm_sensor_faults_total",
		Help: "Invalid readings per sensor",
	}, []string{"device_id", "sensor"})); err != nil {
		return nil, err
	}
	if s.transitions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "farm_connection_transitions_total",
		Help: "Connection state transitions by target state",
	}, []string{"device_id", "to"})); err != nil {
		return nil, err
	}
	if s.failures, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "farm_connection_failures_total",
		Help: "Failed connection attempts",
	}, []string{"device_id"})); err != nil {
		return nil, err
	}
	if s.connected, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "farm_connected",
		Help: "1 while the broker connection is up",
	}, []string{"device_id"})); err != nil {
		return nil, err
	}
	if s.commands, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "farm_commands_total",
		Help: "Handled commands by outcome",
	}, []string{"device_id", "command", "status", "duplicate"})); err != nil {
		return nil, err
	}
	if s.latency, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "farm_command_latency_seconds",
		Help:    "Time spent in the command handler",
		Buckets: prometheus.DefBuckets,
	}, []string{"device_id", "command"})); err != nil {
		return nil, err
	}
	if s.decodeErrs, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "farm_decode_errors_total",
		Help: "Inbound frames dropped as malformed",
	}, []string{"device_id"})); err != nil {
		return nil, err
	}
	if s.breaches, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "farm_threshold_breaches_total",
		Help: "Readings outside the configured thresholds",
	}, []string{"device_id", "sensor"})); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordTelemetry counts the cycle and updates the per-sensor gauges.
func (s *PromSink) RecordTelemetry(ev coremetrics.TelemetryEvent) error {
	s.telemetry.WithLabelValues(ev.DeviceID, strconv.FormatBool(ev.Published)).Inc()
	for _, r := range ev.Readings {
		if r.Valid {
			s.sensorValue.WithLabelValues(ev.DeviceID, r.Name).Set(r.Value)
		} else {
			s.faults.WithLabelValues(ev.DeviceID, r.Name).Inc()
		}
	}
	return nil
}

// RecordConnection tracks transitions, failures and the connected gauge.
func (s *PromSink) RecordConnection(ev coremetrics.ConnectionEvent) error {
	s.transitions.WithLabelValues(ev.DeviceID, ev.To).Inc()
	if ev.Err != "" {
		s.failures.WithLabelValues(ev.DeviceID).Inc()
	}
	up := 0.0
	if ev.To == "connected" {
		up = 1
	}
	s.connected.WithLabelValues(ev.DeviceID).Set(up)
	return nil
}

// RecordCommand counts the command and observes handler latency. Replayed
// duplicates do not run the handler and are not observed.
func (s *PromSink) RecordCommand(ev coremetrics.CommandEvent) error {
	s.commands.WithLabelValues(ev.DeviceID, ev.Command, ev.Status, strconv.FormatBool(ev.Duplicate)).Inc()
	if !ev.Duplicate {
		s.latency.WithLabelValues(ev.DeviceID, ev.Command).Observe(ev.Latency.Seconds())
	}
	return nil
}

func (s *PromSink) RecordDecodeError(ev coremetrics.DecodeErrorEvent) error {
	s.decodeErrs.WithLabelValues(ev.DeviceID).Inc()
	return nil
}

func (s *PromSink) RecordThresholdBreach(ev coremetrics.ThresholdEvent) error {
	s.breaches.WithLabelValues(ev.DeviceID, ev.Sensor).Inc()
	return nil
}
