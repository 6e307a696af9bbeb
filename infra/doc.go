// Package infra holds the adapters behind the core interfaces: the paho and
// RabbitMQ transports, the simulated board, metrics sinks, the diagnostics
// API and logging backends. Core packages never import infra.
package infra
