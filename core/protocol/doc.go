// Package protocol encodes and decodes the four payloads exchanged between a
// field device and the broker: telemetry, status, command and command
// response. Payloads are flat UTF-8 JSON objects. Fields are additive across
// protocol versions; decoders ignore fields they do not know.
//
// Timestamps are whole seconds since the device booted unless the bridge is
// configured with a wall-clock time source. Uptime timestamps cannot be
// correlated across reboots and have one-second precision; consumers must
// treat them as relative ordering information only.
package protocol
