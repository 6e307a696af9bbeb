package metrics

import "github.com/kilianp07/farmbridge/core/factory"

var sinkRegistry = factory.NewRegistry[Sink]()

// RegisterMetricsSink makes a sink kind available to the metrics.sinks
// config list under name. Registering a name twice fails.
func RegisterMetricsSink(name string, f factory.Factory[Sink]) error {
	return sinkRegistry.Register(name, f)
}

// NewMetricsSink turns the metrics.sinks list into the one Sink the bridge
// records into. An empty list records nothing; more than one entry fans every
// event out to each sink in order.
func NewMetricsSink(cfgs []factory.ModuleConfig) (Sink, error) {
	if len(cfgs) == 0 {
		return NopSink{}, nil
	}
	if len(cfgs) == 1 {
		return sinkRegistry.Create(cfgs[0])
	}
	sinks := make([]Sink, len(cfgs))
	for i, c := range cfgs {
		s, err := sinkRegistry.Create(c)
		if err != nil {
			return nil, err
		}
		sinks[i] = s
	}
	return NewMultiSink(sinks...), nil
}
