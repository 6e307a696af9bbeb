package metrics

// MultiSink fans events out to several sinks. Optional recorder events are
// only forwarded to sinks implementing the matching interface.
type MultiSink struct {
	Sinks []Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordTelemetry forwards to all sinks, returning the first error.
func (m *MultiSink) RecordTelemetry(ev TelemetryEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordTelemetry(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordConnection forwards connection events.
func (m *MultiSink) RecordConnection(ev ConnectionEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(ConnectionRecorder); ok {
			if err := rec.RecordConnection(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordCommand forwards command events.
func (m *MultiSink) RecordCommand(ev CommandEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(CommandRecorder); ok {
			if err := rec.RecordCommand(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordDecodeError forwards decode failures.
func (m *MultiSink) RecordDecodeError(ev DecodeErrorEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(DecodeErrorRecorder); ok {
			if err := rec.RecordDecodeError(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordThresholdBreach forwards threshold breaches.
func (m *MultiSink) RecordThresholdBreach(ev ThresholdEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(ThresholdRecorder); ok {
			if err := rec.RecordThresholdBreach(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
