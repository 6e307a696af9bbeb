// Package metrics defines the observability sinks fed by the bridge. The core
// Sink records telemetry cycles; optional recorder interfaces cover
// connection transitions, command outcomes, decode failures and threshold
// breaches. Sinks are built from configuration through NewMetricsSink and are
// fanned out with MultiSink when several are configured. Implementations
// backed by Prometheus and InfluxDB live in infra/metrics.
package metrics
